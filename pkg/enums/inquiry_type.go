package enums

import "fmt"

// InquiryType tags what a shopper wants from the sales team.
type InquiryType string

const (
	InquiryTypeGeneral   InquiryType = "general"
	InquiryTypePurchase  InquiryType = "purchase"
	InquiryTypeTestDrive InquiryType = "test_drive"
	InquiryTypeFinancing InquiryType = "financing"
)

var validInquiryTypes = []InquiryType{
	InquiryTypeGeneral,
	InquiryTypePurchase,
	InquiryTypeTestDrive,
	InquiryTypeFinancing,
}

// String implements fmt.Stringer.
func (i InquiryType) String() string {
	return string(i)
}

// IsValid reports whether the value is a known InquiryType.
func (i InquiryType) IsValid() bool {
	for _, candidate := range validInquiryTypes {
		if candidate == i {
			return true
		}
	}
	return false
}

// Label is the human readable form used in request subjects.
func (i InquiryType) Label() string {
	switch i {
	case InquiryTypePurchase:
		return "Purchase"
	case InquiryTypeTestDrive:
		return "Test Drive"
	case InquiryTypeFinancing:
		return "Financing"
	default:
		return "General Inquiry"
	}
}

// ParseInquiryType converts raw input into an InquiryType.
func ParseInquiryType(value string) (InquiryType, error) {
	for _, candidate := range validInquiryTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid inquiry type %q", value)
}
