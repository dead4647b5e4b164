package client

import (
	"encoding/json"
	"strings"

	pkgerrors "github.com/pkg/errors"

	"github.com/makerspace/doorctl/pkg/config"
	"github.com/makerspace/doorctl/pkg/controller"
	"github.com/makerspace/doorctl/pkg/types"
)

func (c *Client) GetStatus() (*controller.Snapshot, error) {
	ret, err := c.Get("/status")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get door status")
	}

	var snap controller.Snapshot
	if err := json.Unmarshal([]byte(ret), &snap); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal door status")
	}
	return &snap, nil
}

func (c *Client) GetConfig() (*config.RawFileConfig, error) {
	ret, err := c.Get("/config")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get config")
	}

	var conf config.RawFileConfig
	if err := json.Unmarshal([]byte(ret), &conf); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal config")
	}
	return &conf, nil
}

// PostAction asks the controller to lock, unlock or calibrate. The
// action is queued; the door follows on the next tick.
func (c *Client) PostAction(a types.Action) (string, error) {
	payload, err := json.Marshal(map[string]string{"action": string(a)})
	if err != nil {
		return "", err
	}
	ret, err := c.Post("/action", string(payload))
	if err != nil {
		return "", pkgerrors.Wrapf(err, "failed to %s", a)
	}
	return unquote(ret), nil
}

func (c *Client) GetVersion() (string, error) {
	ret, err := c.Get("/version")
	if err != nil {
		return "", pkgerrors.Wrapf(err, "failed to get version")
	}
	return unquote(ret), nil
}

// unquote strips the quotes around a JSON string response.
func unquote(s string) string {
	var v string
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return strings.TrimSpace(s)
	}
	return v
}
