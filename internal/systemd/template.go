// Package systemd generates and checks the unit file that runs the
// proxy server under systemd.
package systemd

import "fmt"

// UnitName is the installed unit file name.
const UnitName = "callproxy.service"

// ServeUnit returns a unit that runs binary's serve command with the
// given config file.
func ServeUnit(binary, configPath string) string {
	return fmt.Sprintf(`[Unit]
Description=callproxy delegated-call proxy
After=network-online.target
Wants=network-online.target

[Service]
Type=simple
ExecStart=%s serve --config %s
Restart=on-failure
RestartSec=2
KillSignal=SIGTERM
TimeoutStopSec=30
NoNewPrivileges=true
PrivateTmp=true
ProtectSystem=strict
ReadWritePaths=%%h/.callproxy

[Install]
WantedBy=multi-user.target
`, binary, configPath)
}
