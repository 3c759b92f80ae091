package enums

import "fmt"

// VehicleCondition describes the inventory category of a vehicle.
type VehicleCondition string

const (
	VehicleConditionNew       VehicleCondition = "new"
	VehicleConditionUsed      VehicleCondition = "used"
	VehicleConditionCertified VehicleCondition = "certified"
)

var validVehicleConditions = []VehicleCondition{
	VehicleConditionNew,
	VehicleConditionUsed,
	VehicleConditionCertified,
}

func (c VehicleCondition) String() string {
	return string(c)
}

func (c VehicleCondition) IsValid() bool {
	for _, candidate := range validVehicleConditions {
		if candidate == c {
			return true
		}
	}
	return false
}

func ParseVehicleCondition(value string) (VehicleCondition, error) {
	for _, candidate := range validVehicleConditions {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid vehicle condition %q", value)
}

// VehicleStatus is the lot availability of a vehicle.
type VehicleStatus string

const (
	VehicleStatusAvailable VehicleStatus = "available"
	VehicleStatusPending   VehicleStatus = "pending"
	VehicleStatusSold      VehicleStatus = "sold"
)

var validVehicleStatuses = []VehicleStatus{
	VehicleStatusAvailable,
	VehicleStatusPending,
	VehicleStatusSold,
}

func (s VehicleStatus) String() string {
	return string(s)
}

func (s VehicleStatus) IsValid() bool {
	for _, candidate := range validVehicleStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

func ParseVehicleStatus(value string) (VehicleStatus, error) {
	for _, candidate := range validVehicleStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid vehicle status %q", value)
}
