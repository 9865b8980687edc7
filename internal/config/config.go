package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/kiosknetwork/kiosk-daemon/internal/core/domain"
)

const (
	// DatadirKey is the local data directory storing the daemon state.
	DatadirKey = "DATADIR"
	// LogLevelKey sets the logging verbosity. For reference on the values https://godoc.org/github.com/sirupsen/logrus#Level
	LogLevelKey = "LOG_LEVEL"
	// AdminListeningPortKey is the port of the local HTTP admin interface.
	AdminListeningPortKey = "ADMIN_LISTENING_PORT"
	// WalletDaemonBinaryKey is the name or path of the wallet daemon executable.
	WalletDaemonBinaryKey = "WALLET_DAEMON_BINARY"
	// WalletCLIBinaryKey is the name or path of the wallet CLI executable used
	// for one-shot wallet creation.
	WalletCLIBinaryKey = "WALLET_CLI_BINARY"
	// WalletFileKey is the wallet file path. Defaults to a file under datadir.
	WalletFileKey = "WALLET_FILE"
	// WalletRPCPortKey is the local port the wallet daemon RPC binds to.
	WalletRPCPortKey = "WALLET_RPC_PORT"
	// NodeEndpointsKey is the ordered list of remote node endpoints in
	// label=host:port form, https://host:port for TLS nodes. The first entry
	// is the default.
	NodeEndpointsKey = "NODE_ENDPOINTS"
	// CommissionAddressKey is the address receiving the platform commission.
	CommissionAddressKey = "COMMISSION_ADDRESS"
	// CommissionRateKey is the commission fraction of the order total.
	CommissionRateKey = "COMMISSION_RATE"
	// DustThresholdKey is the minimum commission amount worth a transfer.
	DustThresholdKey = "DUST_THRESHOLD"
	// ConfirmationThresholdKey is the number of confirmations marking a
	// payment final.
	ConfirmationThresholdKey = "CONFIRMATION_THRESHOLD"
	// OrderTTLKey is how long an order can stay pending before expiring.
	OrderTTLKey = "ORDER_TTL"
	// PollIntervalKey is the pause between payment poll passes.
	PollIntervalKey = "POLL_INTERVAL"
	// HealthIntervalKey is the pause between node health passes.
	HealthIntervalKey = "HEALTH_INTERVAL"
	// CommissionRetryIntervalKey is the pause between commission retry sweeps.
	CommissionRetryIntervalKey = "COMMISSION_RETRY_INTERVAL"
	// ReadinessTimeoutKey bounds the wallet daemon startup for an existing
	// wallet, FreshReadinessTimeoutKey for a newly created one which must
	// scan the chain from scratch.
	ReadinessTimeoutKey      = "READINESS_TIMEOUT"
	FreshReadinessTimeoutKey = "FRESH_READINESS_TIMEOUT"
	// StopGracePeriodKey is how long a terminating daemon gets before being
	// killed.
	StopGracePeriodKey = "STOP_GRACE_PERIOD"
	// RPCTimeoutKey bounds every wallet RPC call, ProbeTimeoutKey every node
	// connectivity probe.
	RPCTimeoutKey   = "RPC_TIMEOUT"
	ProbeTimeoutKey = "PROBE_TIMEOUT"
	// WebhookEndpointsKey is an optional list of URLs receiving order events.
	WebhookEndpointsKey = "WEBHOOK_ENDPOINTS"

	DbLocation     = "db"
	WalletLocation = "wallet"
	LogLocation    = "logs"
)

var vip *viper.Viper
var defaultDatadir = btcutil.AppDataDir("kiosk-daemon", false)

func InitConfig() error {
	vip = viper.New()
	vip.SetEnvPrefix("KIOSK")
	vip.AutomaticEnv()

	vip.SetDefault(DatadirKey, defaultDatadir)
	vip.SetDefault(LogLevelKey, 4)
	vip.SetDefault(AdminListeningPortKey, 9137)
	vip.SetDefault(WalletDaemonBinaryKey, "monero-wallet-rpc")
	vip.SetDefault(WalletCLIBinaryKey, "monero-wallet-cli")
	vip.SetDefault(WalletRPCPortKey, 18083)
	vip.SetDefault(CommissionRateKey, 0.07)
	vip.SetDefault(DustThresholdKey, 0.0005)
	vip.SetDefault(ConfirmationThresholdKey, 10)
	vip.SetDefault(OrderTTLKey, 24*time.Hour)
	vip.SetDefault(PollIntervalKey, 30*time.Second)
	vip.SetDefault(HealthIntervalKey, 5*time.Minute)
	vip.SetDefault(CommissionRetryIntervalKey, time.Hour)
	vip.SetDefault(ReadinessTimeoutKey, time.Minute)
	vip.SetDefault(FreshReadinessTimeoutKey, 10*time.Minute)
	vip.SetDefault(StopGracePeriodKey, 10*time.Second)
	vip.SetDefault(RPCTimeoutKey, 30*time.Second)
	vip.SetDefault(ProbeTimeoutKey, 10*time.Second)

	if err := validate(); err != nil {
		return fmt.Errorf("error while validating config: %s", err)
	}

	if err := initDatadir(); err != nil {
		return fmt.Errorf("error while creating datadir: %s", err)
	}

	return nil
}

func GetString(key string) string {
	return vip.GetString(key)
}

func GetInt(key string) int {
	return vip.GetInt(key)
}

func GetFloat(key string) float64 {
	return vip.GetFloat64(key)
}

func GetStringSlice(key string) []string {
	return vip.GetStringSlice(key)
}

func GetDuration(key string) time.Duration {
	return vip.GetDuration(key)
}

func GetBool(key string) bool {
	return vip.GetBool(key)
}

func GetDatadir() string {
	return GetString(DatadirKey)
}

func GetDecimal(key string) decimal.Decimal {
	return decimal.NewFromFloat(GetFloat(key))
}

// GetWalletFile returns the configured wallet file path, defaulting to
// <datadir>/wallet/kiosk.
func GetWalletFile() string {
	if file := GetString(WalletFileKey); len(file) > 0 {
		return file
	}
	return filepath.Join(GetDatadir(), WalletLocation, "kiosk")
}

// GetNodeEndpoints parses the configured endpoint list. Entries keep their
// configured order, the first one is flagged as the default.
func GetNodeEndpoints() ([]domain.NodeEndpoint, error) {
	entries := GetStringSlice(NodeEndpointsKey)
	endpoints := make([]domain.NodeEndpoint, 0, len(entries))
	for i, entry := range entries {
		endpoint, err := parseNodeEndpoint(entry, i)
		if err != nil {
			return nil, err
		}
		endpoints = append(endpoints, *endpoint)
	}
	return endpoints, nil
}

func parseNodeEndpoint(entry string, index int) (*domain.NodeEndpoint, error) {
	label := fmt.Sprintf("node-%d", index)
	addr := entry
	if parts := strings.SplitN(entry, "=", 2); len(parts) == 2 {
		label, addr = parts[0], parts[1]
	}

	tls := false
	if strings.HasPrefix(addr, "https://") {
		tls = true
		addr = strings.TrimPrefix(addr, "https://")
	} else {
		addr = strings.TrimPrefix(addr, "http://")
	}

	host, portStr, found := strings.Cut(addr, ":")
	if !found || len(host) <= 0 {
		return nil, fmt.Errorf("invalid node endpoint %q, expected host:port", entry)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return nil, fmt.Errorf("invalid node endpoint port in %q", entry)
	}

	return &domain.NodeEndpoint{
		Host:     host,
		Port:     port,
		TLS:      tls,
		Label:    label,
		Default:  index == 0,
		Priority: index,
	}, nil
}

func validate() error {
	datadir := GetString(DatadirKey)
	if len(datadir) <= 0 {
		return fmt.Errorf("missing datadir")
	}

	if !vip.IsSet(CommissionAddressKey) || len(GetString(CommissionAddressKey)) <= 0 {
		return fmt.Errorf("missing commission address")
	}

	rate := GetFloat(CommissionRateKey)
	if rate < 0 || rate >= 1 {
		return fmt.Errorf("%s must be in the [0, 1) range", CommissionRateKey)
	}

	if GetFloat(DustThresholdKey) < 0 {
		return fmt.Errorf("%s must not be negative", DustThresholdKey)
	}

	if GetInt(ConfirmationThresholdKey) < 1 {
		return fmt.Errorf("%s must be at least 1", ConfirmationThresholdKey)
	}

	endpoints, err := GetNodeEndpoints()
	if err != nil {
		return err
	}
	if len(endpoints) <= 0 {
		return fmt.Errorf("missing node endpoints")
	}

	return nil
}

func initDatadir() error {
	datadir := GetDatadir()
	for _, location := range []string{DbLocation, WalletLocation, LogLocation} {
		if err := makeDirectoryIfNotExists(filepath.Join(datadir, location)); err != nil {
			return err
		}
	}
	return nil
}

func makeDirectoryIfNotExists(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return os.MkdirAll(path, os.ModeDir|0755)
	}
	return nil
}
