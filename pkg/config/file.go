package config

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/jsonc"

	"github.com/makerspace/doorctl/pkg/utils/ptr"
)

var (
	defaultFileConfig = &RawFileConfig{
		LockPort:           ptr.To("/dev/ttyACM0"),
		PanelPort:          ptr.To("/dev/ttyUSB0"),
		ReaderPort:         ptr.To("/dev/ttyUSB1"),
		BaudRate:           ptr.To(115200),
		LineTimeout:        ptr.To(Duration(2 * time.Second)),
		ReaderPollInterval: ptr.To(Duration(time.Second)),
		FirmwareLog:        ptr.To("/var/log/doorctl-lock.log"),

		TickInterval: ptr.To(Duration(100 * time.Millisecond)),
		Timezone:     ptr.To("Europe/Copenhagen"),
		OpenWeekday:  ptr.To("Thursday"),
		OpenHour:     ptr.To(15),

		EnterTime:             ptr.To(Duration(30 * time.Second)),
		LeaveTime:             ptr.To(Duration(5 * time.Second)),
		UnlockPeriod:          ptr.To(Duration(15 * time.Minute)),
		UnlockWarn:            ptr.To(Duration(5 * time.Minute)),
		GatewayUnlockPeriod:   ptr.To(Duration(30 * time.Second)),
		EnterUnlockedWarn:     ptr.To(Duration(5 * time.Minute)),
		UnlockedAlertInterval: ptr.To(Duration(30 * time.Second)),
		TempStatusTime:        ptr.To(Duration(10 * time.Second)),

		FaultMode:        ptr.To("exit"),
		FaultWait:        ptr.To(Duration(300 * time.Second)),
		AlarmRepetitions: ptr.To(10),

		AuthorityURL:       ptr.To("https://panopticon.hal9k.dk/api/v1"),
		AuthorityToken:     ptr.To(""),
		AuthorityTokenFile: ptr.To("/etc/doorctl/apikey.txt"),

		SlackActive:            ptr.To(true),
		SlackTestMode:          ptr.To(false),
		SlackToken:             ptr.To(""),
		SlackTokenFile:         ptr.To("/etc/doorctl/slack-token"),
		SlackMonitoringChannel: ptr.To("monitoring"),
		SlackGeneralChannel:    ptr.To("general"),
		SlackTestingChannel:    ptr.To("testing"),

		GatewayTransport:    ptr.To(GatewayHTTP),
		GatewayURL:          ptr.To("https://acsgateway.hal9k.dk"),
		GatewayToken:        ptr.To(""),
		GatewayTokenFile:    ptr.To("/etc/doorctl/gw-token"),
		GatewaySyncSchedule: ptr.To("@every 15s"),
		MQTTBroker:          ptr.To("tcp://localhost:1883"),
		MQTTClientID:        ptr.To("doorctl"),
		MQTTUsername:        ptr.To(""),
		MQTTPassword:        ptr.To(""),
		MQTTTopicPrefix:     ptr.To("doorctl"),

		AllowNonRootAccess: ptr.To(false),
		SimulateCards:      []string{"0000000042"},
	}
)

// File is a configuration backed by a JSON file.
type File struct {
	c        *RawFileConfig
	mu       *sync.RWMutex
	filepath string
}

// NewFile loads the config at configPath. A missing file yields defaults.
func NewFile(configPath string) (*File, error) {
	f := &File{
		filepath: configPath,
		mu:       &sync.RWMutex{},
	}
	err := f.Load()
	if err != nil {
		return nil, err
	}

	return f, nil
}

// NewFileFromConfig wraps c without reading the file.
func NewFileFromConfig(c *RawFileConfig, configPath string) *File {
	if c == nil {
		c = &RawFileConfig{}
	}

	return &File{
		c:        c,
		mu:       &sync.RWMutex{},
		filepath: configPath,
	}
}

// RawFileConfig is the on-disk form. Nil fields take their default.
type RawFileConfig struct {
	LockPort           *string   `json:"lockPort,omitempty"`
	PanelPort          *string   `json:"panelPort,omitempty"`
	ReaderPort         *string   `json:"readerPort,omitempty"`
	BaudRate           *int      `json:"baudRate,omitempty"`
	LineTimeout        *Duration `json:"lineTimeout,omitempty"`
	ReaderPollInterval *Duration `json:"readerPollInterval,omitempty"`
	FirmwareLog        *string   `json:"firmwareLog,omitempty"`

	TickInterval *Duration `json:"tickInterval,omitempty"`
	Timezone     *string   `json:"timezone,omitempty"`
	OpenWeekday  *string   `json:"openWeekday,omitempty"`
	OpenHour     *int      `json:"openHour,omitempty"`

	EnterTime             *Duration `json:"enterTime,omitempty"`
	LeaveTime             *Duration `json:"leaveTime,omitempty"`
	UnlockPeriod          *Duration `json:"unlockPeriod,omitempty"`
	UnlockWarn            *Duration `json:"unlockWarn,omitempty"`
	GatewayUnlockPeriod   *Duration `json:"gatewayUnlockPeriod,omitempty"`
	EnterUnlockedWarn     *Duration `json:"enterUnlockedWarn,omitempty"`
	UnlockedAlertInterval *Duration `json:"unlockedAlertInterval,omitempty"`
	TempStatusTime        *Duration `json:"tempStatusTime,omitempty"`

	FaultMode        *string   `json:"faultMode,omitempty"`
	FaultWait        *Duration `json:"faultWait,omitempty"`
	AlarmRepetitions *int      `json:"alarmRepetitions,omitempty"`

	AuthorityURL       *string `json:"authorityURL,omitempty"`
	AuthorityToken     *string `json:"authorityToken,omitempty"`
	AuthorityTokenFile *string `json:"authorityTokenFile,omitempty"`

	SlackActive            *bool   `json:"slackActive,omitempty"`
	SlackTestMode          *bool   `json:"slackTestMode,omitempty"`
	SlackToken             *string `json:"slackToken,omitempty"`
	SlackTokenFile         *string `json:"slackTokenFile,omitempty"`
	SlackMonitoringChannel *string `json:"slackMonitoringChannel,omitempty"`
	SlackGeneralChannel    *string `json:"slackGeneralChannel,omitempty"`
	SlackTestingChannel    *string `json:"slackTestingChannel,omitempty"`

	GatewayTransport    *string `json:"gatewayTransport,omitempty"`
	GatewayURL          *string `json:"gatewayURL,omitempty"`
	GatewayToken        *string `json:"gatewayToken,omitempty"`
	GatewayTokenFile    *string `json:"gatewayTokenFile,omitempty"`
	GatewaySyncSchedule *string `json:"gatewaySyncSchedule,omitempty"`
	MQTTBroker          *string `json:"mqttBroker,omitempty"`
	MQTTClientID        *string `json:"mqttClientID,omitempty"`
	MQTTUsername        *string `json:"mqttUsername,omitempty"`
	MQTTPassword        *string `json:"mqttPassword,omitempty"`
	MQTTTopicPrefix     *string `json:"mqttTopicPrefix,omitempty"`

	AllowNonRootAccess *bool    `json:"allowNonRootAccess,omitempty"`
	SimulateCards      []string `json:"simulateCards,omitempty"`
}

// value returns the configured field, or its default.
func value[T any](f *File, field func(*RawFileConfig) *T) T {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	if v := field(f.c); v != nil {
		return *v
	}
	return *field(defaultFileConfig)
}

func duration(f *File, field func(*RawFileConfig) *Duration) time.Duration {
	return time.Duration(value(f, field))
}

func (f *File) LockPort() string {
	return value(f, func(c *RawFileConfig) *string { return c.LockPort })
}

func (f *File) PanelPort() string {
	return value(f, func(c *RawFileConfig) *string { return c.PanelPort })
}

func (f *File) ReaderPort() string {
	return value(f, func(c *RawFileConfig) *string { return c.ReaderPort })
}

func (f *File) BaudRate() int {
	return value(f, func(c *RawFileConfig) *int { return c.BaudRate })
}

func (f *File) LineTimeout() time.Duration {
	return duration(f, func(c *RawFileConfig) *Duration { return c.LineTimeout })
}

func (f *File) ReaderPollInterval() time.Duration {
	return duration(f, func(c *RawFileConfig) *Duration { return c.ReaderPollInterval })
}

func (f *File) FirmwareLog() string {
	return value(f, func(c *RawFileConfig) *string { return c.FirmwareLog })
}

func (f *File) TickInterval() time.Duration {
	return duration(f, func(c *RawFileConfig) *Duration { return c.TickInterval })
}

func (f *File) Timezone() string {
	return value(f, func(c *RawFileConfig) *string { return c.Timezone })
}

// Location loads the configured time zone.
func (f *File) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(f.Timezone())
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to load timezone %s", f.Timezone())
	}
	return loc, nil
}

func (f *File) OpenWeekday() string {
	return value(f, func(c *RawFileConfig) *string { return c.OpenWeekday })
}

func (f *File) OpenHour() int {
	return value(f, func(c *RawFileConfig) *int { return c.OpenHour })
}

func (f *File) EnterTime() time.Duration {
	return duration(f, func(c *RawFileConfig) *Duration { return c.EnterTime })
}

func (f *File) LeaveTime() time.Duration {
	return duration(f, func(c *RawFileConfig) *Duration { return c.LeaveTime })
}

func (f *File) UnlockPeriod() time.Duration {
	return duration(f, func(c *RawFileConfig) *Duration { return c.UnlockPeriod })
}

func (f *File) UnlockWarn() time.Duration {
	return duration(f, func(c *RawFileConfig) *Duration { return c.UnlockWarn })
}

func (f *File) GatewayUnlockPeriod() time.Duration {
	return duration(f, func(c *RawFileConfig) *Duration { return c.GatewayUnlockPeriod })
}

func (f *File) EnterUnlockedWarn() time.Duration {
	return duration(f, func(c *RawFileConfig) *Duration { return c.EnterUnlockedWarn })
}

func (f *File) UnlockedAlertInterval() time.Duration {
	return duration(f, func(c *RawFileConfig) *Duration { return c.UnlockedAlertInterval })
}

func (f *File) TempStatusTime() time.Duration {
	return duration(f, func(c *RawFileConfig) *Duration { return c.TempStatusTime })
}

func (f *File) FaultMode() string {
	return value(f, func(c *RawFileConfig) *string { return c.FaultMode })
}

func (f *File) FaultWait() time.Duration {
	return duration(f, func(c *RawFileConfig) *Duration { return c.FaultWait })
}

func (f *File) AlarmRepetitions() int {
	return value(f, func(c *RawFileConfig) *int { return c.AlarmRepetitions })
}

func (f *File) AuthorityURL() string {
	return value(f, func(c *RawFileConfig) *string { return c.AuthorityURL })
}

// AuthorityToken returns the inline token, or reads the token file.
func (f *File) AuthorityToken() (string, error) {
	return secret(
		value(f, func(c *RawFileConfig) *string { return c.AuthorityToken }),
		value(f, func(c *RawFileConfig) *string { return c.AuthorityTokenFile }),
	)
}

func (f *File) SlackActive() bool {
	return value(f, func(c *RawFileConfig) *bool { return c.SlackActive })
}

func (f *File) SlackTestMode() bool {
	return value(f, func(c *RawFileConfig) *bool { return c.SlackTestMode })
}

// SlackToken returns the inline token, or reads the token file.
func (f *File) SlackToken() (string, error) {
	return secret(
		value(f, func(c *RawFileConfig) *string { return c.SlackToken }),
		value(f, func(c *RawFileConfig) *string { return c.SlackTokenFile }),
	)
}

func (f *File) SlackMonitoringChannel() string {
	return value(f, func(c *RawFileConfig) *string { return c.SlackMonitoringChannel })
}

func (f *File) SlackGeneralChannel() string {
	return value(f, func(c *RawFileConfig) *string { return c.SlackGeneralChannel })
}

func (f *File) SlackTestingChannel() string {
	return value(f, func(c *RawFileConfig) *string { return c.SlackTestingChannel })
}

func (f *File) GatewayTransport() string {
	return value(f, func(c *RawFileConfig) *string { return c.GatewayTransport })
}

func (f *File) GatewayURL() string {
	return value(f, func(c *RawFileConfig) *string { return c.GatewayURL })
}

// GatewayToken returns the inline token, or reads the token file.
func (f *File) GatewayToken() (string, error) {
	return secret(
		value(f, func(c *RawFileConfig) *string { return c.GatewayToken }),
		value(f, func(c *RawFileConfig) *string { return c.GatewayTokenFile }),
	)
}

func (f *File) GatewaySyncSchedule() string {
	return value(f, func(c *RawFileConfig) *string { return c.GatewaySyncSchedule })
}

func (f *File) MQTTBroker() string {
	return value(f, func(c *RawFileConfig) *string { return c.MQTTBroker })
}

func (f *File) MQTTClientID() string {
	return value(f, func(c *RawFileConfig) *string { return c.MQTTClientID })
}

func (f *File) MQTTUsername() string {
	return value(f, func(c *RawFileConfig) *string { return c.MQTTUsername })
}

func (f *File) MQTTPassword() string {
	return value(f, func(c *RawFileConfig) *string { return c.MQTTPassword })
}

func (f *File) MQTTTopicPrefix() string {
	return value(f, func(c *RawFileConfig) *string { return c.MQTTTopicPrefix })
}

func (f *File) AllowNonRootAccess() bool {
	return value(f, func(c *RawFileConfig) *bool { return c.AllowNonRootAccess })
}

func (f *File) SetAllowNonRootAccess(b bool) {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.c.AllowNonRootAccess = &b
}

func (f *File) SimulateCards() []string {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	if len(f.c.SimulateCards) > 0 {
		return append([]string(nil), f.c.SimulateCards...)
	}
	return append([]string(nil), defaultFileConfig.SimulateCards...)
}

// Raw returns a copy of the on-disk form.
func (f *File) Raw() RawFileConfig {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()
	return *f.c
}

// Validate checks values that would otherwise fail at runtime.
func (f *File) Validate() error {
	switch f.FaultMode() {
	case "exit", "wait":
	default:
		return fmt.Errorf("faultMode must be exit or wait, got %q", f.FaultMode())
	}
	switch f.GatewayTransport() {
	case GatewayNone, GatewayHTTP, GatewayMQTT:
	default:
		return fmt.Errorf("gatewayTransport must be none, http or mqtt, got %q", f.GatewayTransport())
	}
	if _, err := ParseWeekday(f.OpenWeekday()); err != nil {
		return err
	}
	if h := f.OpenHour(); h < 0 || h > 23 {
		return fmt.Errorf("openHour must be between 0 and 23, got %d", h)
	}
	if _, err := f.Location(); err != nil {
		return err
	}
	for name, d := range map[string]time.Duration{
		"lineTimeout":  f.LineTimeout(),
		"tickInterval": f.TickInterval(),
		"enterTime":    f.EnterTime(),
		"leaveTime":    f.LeaveTime(),
		"unlockPeriod": f.UnlockPeriod(),
		"faultWait":    f.FaultWait(),
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %v", name, d)
		}
	}
	return nil
}

// Load reads the file. Missing or empty files yield the defaults.
func (f *File) Load() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	fp, err := os.Open(f.filepath)
	if err != nil {
		if os.IsNotExist(err) {
			// Do not make f.c a nil.
			f.c = &RawFileConfig{}
			return nil
		}
		return pkgerrors.Wrapf(err, "failed to open file %s", f.filepath)
	}
	defer func(fp *os.File) {
		err := fp.Close()
		if err != nil {
			logrus.Warnf("failed to close file %s", f.filepath)
		}
	}(fp)

	b, err := io.ReadAll(fp)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to read file %s", f.filepath)
	}

	if strings.TrimSpace(string(b)) == "" {
		f.c = &RawFileConfig{}
		return nil
	}

	conf := RawFileConfig{}
	err = json.Unmarshal(jsonc.ToJSON(b), &conf)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to unmarshal config from file %s", f.filepath)
	}
	f.c = &conf

	return nil
}

// Save writes the config as plain JSON. Comments in the original file are lost.
func (f *File) Save() error {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.c == nil {
		return pkgerrors.New("config is nil")
	}

	fp, err := os.OpenFile(f.filepath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to open file %s", f.filepath)
	}
	defer func(fp *os.File) {
		err := fp.Close()
		if err != nil {
			logrus.Warnf("failed to close file %s", f.filepath)
		}
	}(fp)

	enc := json.NewEncoder(fp)
	enc.SetIndent("", "  ")
	err = enc.Encode(f.c)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to encode config to file %s", f.filepath)
	}

	return nil
}

// LogrusFields lists the settings worth logging at startup. Secrets are
// left out.
func (f *File) LogrusFields() logrus.Fields {
	if f.c == nil {
		panic("config is nil")
	}

	return logrus.Fields{
		"lockPort":         f.LockPort(),
		"panelPort":        f.PanelPort(),
		"readerPort":       f.ReaderPort(),
		"baudRate":         f.BaudRate(),
		"tickInterval":     f.TickInterval(),
		"timezone":         f.Timezone(),
		"openWeekday":      f.OpenWeekday(),
		"openHour":         f.OpenHour(),
		"faultMode":        f.FaultMode(),
		"authorityURL":     f.AuthorityURL(),
		"slackActive":      f.SlackActive(),
		"slackTestMode":    f.SlackTestMode(),
		"gatewayTransport": f.GatewayTransport(),
	}
}

func secret(inline, path string) (string, error) {
	if inline != "" {
		return inline, nil
	}
	if path == "" {
		return "", nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", pkgerrors.Wrapf(err, "failed to read secret from %s", path)
	}
	return strings.TrimSpace(string(b)), nil
}
