package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/dealerhub/showroom/internal/account"
	pkgerrors "github.com/dealerhub/showroom/pkg/errors"
	"github.com/dealerhub/showroom/pkg/types"
)

// GetVehicle reads a public catalog snapshot.
func (c *Client) GetVehicle(ctx context.Context, id string) (*account.Vehicle, error) {
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vehicle id is required")
	}
	var vehicle account.Vehicle
	if err := c.do(ctx, call{method: http.MethodGet, path: "/api/public/v1/vehicles/" + url.PathEscape(trimmed)}, &vehicle); err != nil {
		return nil, err
	}
	return &vehicle, nil
}

func decodeData(body []byte, out any) error {
	envelope := types.SuccessEnvelope{Data: out}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode response")
	}
	return nil
}

func mustJSON(v any) []byte {
	raw, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return raw
}
