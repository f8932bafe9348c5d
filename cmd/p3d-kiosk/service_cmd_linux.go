//go:build linux

package main

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

const (
	unitName = "p3d-kiosk.service"
	unitPath = "/etc/systemd/system/" + unitName
)

// systemd creates /etc/p3d-kiosk, /var/lib/p3d-kiosk and /var/log/p3d-kiosk
// from the *Directory= settings.
const unitTemplate = `[Unit]
Description=p3d kiosk presentation player
After=network-online.target avahi-daemon.service
Wants=network-online.target

[Service]
Type=simple
ExecStart=%s run
ExecReload=/bin/kill -HUP $MAINPID
ConfigurationDirectory=p3d-kiosk
StateDirectory=p3d-kiosk
LogsDirectory=p3d-kiosk
WorkingDirectory=/var/lib/p3d-kiosk
Restart=on-failure
RestartSec=5

ProtectSystem=strict
ProtectHome=read-only
PrivateTmp=true
NoNewPrivileges=true
SyslogIdentifier=p3d-kiosk

[Install]
WantedBy=multi-user.target
`

var serviceCmd = &cobra.Command{
	Use:   "service",
	Short: "Manage the p3d-kiosk systemd unit",
}

func init() {
	rootCmd.AddCommand(serviceCmd)
	serviceCmd.AddCommand(serviceInstallCmd, serviceUninstallCmd, serviceStatusCmd)
}

var serviceInstallCmd = &cobra.Command{
	Use:   "install",
	Short: "Install and enable a unit that runs this binary",
	RunE: func(cmd *cobra.Command, args []string) error {
		exe, err := os.Executable()
		if err != nil {
			return err
		}
		if exe, err = filepath.EvalSymlinks(exe); err != nil {
			return err
		}
		if err := os.WriteFile(unitPath, []byte(fmt.Sprintf(unitTemplate, exe)), 0644); err != nil {
			return fmt.Errorf("write %s: %w", unitPath, err)
		}
		if err := systemctl("daemon-reload"); err != nil {
			return err
		}
		if err := systemctl("enable", unitName); err != nil {
			return err
		}
		fmt.Printf("Installed %s (ExecStart=%s run).\n", unitPath, exe)
		fmt.Printf("Start it with: systemctl start %s\n", unitName)
		return nil
	},
}

var serviceUninstallCmd = &cobra.Command{
	Use:   "uninstall",
	Short: "Stop, disable and remove the unit",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := systemctl("disable", "--now", unitName); err != nil {
			fmt.Fprintln(os.Stderr, err)
		}
		if err := os.Remove(unitPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
		return systemctl("daemon-reload")
	},
}

var serviceStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the unit status",
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := os.Stat(unitPath); errors.Is(err, os.ErrNotExist) {
			fmt.Println("Service: not installed")
			return nil
		}
		// systemctl status exits non-zero for a stopped unit.
		out, _ := exec.Command("systemctl", "status", unitName, "--no-pager").CombinedOutput()
		fmt.Println(strings.TrimSpace(string(out)))
		return nil
	},
}

func systemctl(args ...string) error {
	out, err := exec.Command("systemctl", args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("systemctl %s: %s", strings.Join(args, " "), strings.TrimSpace(string(out)))
	}
	return nil
}
