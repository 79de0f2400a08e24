package fingerprint

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"
)

// Environment holds the device signals that feed the fingerprint. The first
// five fields are always used; the remaining ones only when set.
type Environment struct {
	UserAgent      string
	Language       string
	ScreenWidth    int
	ScreenHeight   int
	TimezoneOffset int // minutes, UTC minus local (positive west of UTC)
	Platform       string

	ColorDepth          int
	HardwareConcurrency int
	DeviceMemoryGB      int
	LocalStorage        *bool
	SessionStorage      *bool
}

// Components returns the ordered attribute list that is hashed
func (e Environment) Components() []string {
	parts := []string{
		e.UserAgent,
		e.Language,
		fmt.Sprintf("%dx%d", e.ScreenWidth, e.ScreenHeight),
		strconv.Itoa(e.TimezoneOffset),
		e.Platform,
	}
	if e.ColorDepth > 0 {
		parts = append(parts, strconv.Itoa(e.ColorDepth))
	}
	if e.HardwareConcurrency > 0 {
		parts = append(parts, strconv.Itoa(e.HardwareConcurrency))
	}
	if e.DeviceMemoryGB > 0 {
		parts = append(parts, strconv.Itoa(e.DeviceMemoryGB))
	}
	if e.LocalStorage != nil {
		parts = append(parts, strconv.FormatBool(*e.LocalStorage))
	}
	if e.SessionStorage != nil {
		parts = append(parts, strconv.FormatBool(*e.SessionStorage))
	}
	return parts
}

// HostOptions overrides signals a server process cannot observe itself
type HostOptions struct {
	Version      string
	Language     string
	ScreenWidth  int
	ScreenHeight int
	Extended     bool
}

// HostEnvironment derives an Environment from the running process.
func HostEnvironment(opts HostOptions, now time.Time) Environment {
	lang := opts.Language
	if lang == "" {
		lang = languageFromLocale(os.Getenv("LC_ALL"), os.Getenv("LANG"))
	}

	_, offsetSeconds := now.Zone()

	env := Environment{
		UserAgent:      fmt.Sprintf("matcenter/%s (%s; %s)", opts.Version, runtime.GOOS, runtime.GOARCH),
		Language:       lang,
		ScreenWidth:    opts.ScreenWidth,
		ScreenHeight:   opts.ScreenHeight,
		TimezoneOffset: -offsetSeconds / 60,
		Platform:       runtime.GOOS + "/" + runtime.GOARCH,
	}
	if opts.Extended {
		env.HardwareConcurrency = runtime.NumCPU()
	}
	return env
}

// languageFromLocale turns "ru_RU.UTF-8" into "ru-RU"
func languageFromLocale(candidates ...string) string {
	for _, c := range candidates {
		if c == "" || c == "C" || c == "POSIX" {
			continue
		}
		if i := strings.IndexAny(c, ".@"); i >= 0 {
			c = c[:i]
		}
		return strings.ReplaceAll(c, "_", "-")
	}
	return "en-US"
}
