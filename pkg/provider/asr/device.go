package asr

import (
	"fmt"
	"os"
	"runtime"
	"strings"
)

// Device is where inference runs.
type Device string

const (
	DeviceCPU    Device = "cpu"
	DeviceCUDA   Device = "cuda"
	DeviceMetal  Device = "metal"
	DeviceRemote Device = "remote"
)

// Accelerated reports whether d is a local accelerator.
func (d Device) Accelerated() bool {
	return d == DeviceCUDA || d == DeviceMetal
}

// Precision is the numeric precision of model weights.
type Precision string

const (
	PrecisionFP16 Precision = "fp16"
	PrecisionFP32 Precision = "fp32"
)

// DevicePreference is the configured device choice.
type DevicePreference string

const (
	PreferAuto        DevicePreference = "auto"
	PreferCPU         DevicePreference = "cpu"
	PreferAccelerator DevicePreference = "accelerator"
)

// ParseDevicePreference validates s. The empty string means auto.
func ParseDevicePreference(s string) (DevicePreference, error) {
	switch p := DevicePreference(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PreferAuto, nil
	case PreferAuto, PreferCPU, PreferAccelerator:
		return p, nil
	default:
		return "", fmt.Errorf("asr: unknown device preference %q (want auto, cpu or accelerator)", s)
	}
}

// probeAccelerator finds a usable local accelerator. It is a variable so
// tests can pin the result.
var probeAccelerator = func() (Device, bool) {
	if runtime.GOOS == "darwin" && runtime.GOARCH == "arm64" {
		return DeviceMetal, true
	}
	for _, p := range []string{"/dev/nvidia0", "/proc/driver/nvidia/version"} {
		if _, err := os.Stat(p); err == nil {
			return DeviceCUDA, true
		}
	}
	return DeviceCPU, false
}

// ResolveDevice picks the device and matching precision for pref:
// half precision on an accelerator, full precision on the CPU. A preference
// for an accelerator falls back to the CPU when none is present.
func ResolveDevice(pref DevicePreference) (Device, Precision) {
	if pref == PreferCPU {
		return DeviceCPU, PrecisionFP32
	}
	if dev, ok := probeAccelerator(); ok {
		return dev, PrecisionFP16
	}
	return DeviceCPU, PrecisionFP32
}
