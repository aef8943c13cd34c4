package cli

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ppiankov/callproxy/internal/client"
	"github.com/ppiankov/callproxy/internal/principal"
	"github.com/ppiankov/callproxy/internal/settings"
)

// dial connects to the proxy server as the --as principal.
func dial() (*client.Client, error) {
	caller := principal.Anonymous
	if callerText != "" {
		id, err := principal.Parse(callerText)
		if err != nil {
			return nil, fmt.Errorf("--as: %w", err)
		}
		caller = id
	}

	addr := serverAddr
	if addr == "" {
		cfg, err := settings.LoadConfig(configPath)
		if err != nil {
			return nil, err
		}
		addr = cfg.Listen
	}
	return client.New(addr, caller)
}

func parsePrincipalArg(name, text string) (principal.ID, error) {
	id, err := principal.Parse(text)
	if err != nil {
		return principal.ID{}, fmt.Errorf("%s: %w", name, err)
	}
	return id, nil
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func formatBytes(b []byte) string {
	if len(b) == 0 {
		return "(empty)"
	}
	return hex.EncodeToString(b)
}

func formatTime(t time.Time) string {
	return t.Local().Format("2006-01-02 15:04:05")
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
