// ABOUTME: Power source probes
// ABOUTME: Reads Linux sysfs power supplies or reports a fixed answer

package provider

import (
	"os"
	"path/filepath"
	"strings"
)

// DefaultPowerSupplyDir is where Linux exposes power supplies.
const DefaultPowerSupplyDir = "/sys/class/power_supply"

// SysfsPower reports external power when any mains or USB supply is online.
type SysfsPower struct {
	Dir string
}

func (p SysfsPower) ExternalPower() bool {
	dir := p.Dir
	if dir == "" {
		dir = DefaultPowerSupplyDir
	}

	supplies, err := filepath.Glob(filepath.Join(dir, "*"))
	if err != nil {
		return false
	}
	for _, supply := range supplies {
		switch readAttr(supply, "type") {
		case "Mains", "USB", "USB_C", "USB_PD":
		default:
			continue
		}
		if readAttr(supply, "online") == "1" {
			return true
		}
	}
	return false
}

func readAttr(supply, name string) string {
	data, err := os.ReadFile(filepath.Join(supply, name))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// FixedPower always gives the same answer.
type FixedPower bool

func (p FixedPower) ExternalPower() bool {
	return bool(p)
}
