// Package profiler guesses camera and flash placement from a user-agent-like
// device signature so the capture screen can tell the user where to put a
// finger. It is a best-effort pattern match and never fails.
package profiler

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"ppg-screening/internal/i18n"
	"ppg-screening/internal/models"
)

const (
	osIOS     = "iOS"
	osAndroid = "Android"
)

var (
	reIPhoneGen  = regexp.MustCompile(`iPhone\s?(\d{1,2})(\s?(Pro|Plus|Max|mini))*`)
	reIOSVersion = regexp.MustCompile(`OS (\d+)[_.]\d`)
	reAndroid    = regexp.MustCompile(`Android\s(\d+)`)
	reSamsung    = regexp.MustCompile(`SM-([A-Z])(\d{3,4})[A-Z0-9]*`)
	rePixel      = regexp.MustCompile(`Pixel\s?(\d+)?(\s?(Pro|XL|a))*`)
	reMotorola   = regexp.MustCompile(`(?i)moto\s?[a-z0-9]+|motorola|XT\d{4}`)
	reOppoFamily = regexp.MustCompile(`(?i)\boppo\b|CPH\d{4}|realme|RMX\d{4}|\bvivo\b|V\d{4}[A-Z]?\b`)
	reXiaomi     = regexp.MustCompile(`(?i)xiaomi|redmi|poco|\bMi\s\d+`)
	reHuawei     = regexp.MustCompile(`(?i)huawei|honor|\b(ELE|VOG|ANE|LYA|MAR|NOH)-[A-Z0-9]+`)
	reSony       = regexp.MustCompile(`(?i)xperia|\bSO-\d{2}[A-Z]|\bXQ-[A-Z]{2}\d{2}`)
	reLG         = regexp.MustCompile(`\bLG[-\s]|\bLM-[A-Z0-9]+`)
)

// Profiler renders instructions through a Translator for one locale.
type Profiler struct {
	tr     i18n.Translator
	locale string
}

func New(tr i18n.Translator, locale string) *Profiler {
	if tr == nil {
		tr = i18n.Default()
	}
	if locale == "" {
		locale = i18n.DefaultLocale
	}
	return &Profiler{tr: tr, locale: locale}
}

// Profile uses the embedded English catalog.
func Profile(signature string) models.DeviceInfo {
	return New(nil, "").Profile(signature)
}

// Profile inspects the signature and fills in device capabilities.
func (p *Profiler) Profile(signature string) models.DeviceInfo {
	info := match(signature)
	info.Instructions = i18n.Format(p.tr, info.InstructionsKey, p.locale, map[string]string{
		"camera": info.CameraPosition,
		"model":  info.Model,
	})
	if info.WarningKey != "" {
		info.IsOldDevice = true
		info.OldDeviceWarning = i18n.Format(p.tr, info.WarningKey, p.locale, map[string]string{
			"model": info.Model,
		})
	}
	return info
}

func match(sig string) models.DeviceInfo {
	info := models.DeviceInfo{
		Brand:           "Unknown",
		Model:           "Unknown",
		HasTorch:        true,
		CameraPosition:  "back of the device",
		InstructionsKey: "device.instructions.generic",
	}
	if v := firstInt(reAndroid, sig); v > 0 {
		info.OS, info.OSVersion = osAndroid, v
	} else if strings.Contains(sig, "Android") {
		info.OS = osAndroid
	}

	switch {
	case strings.Contains(sig, "iPad"):
		info.Brand, info.Model, info.OS = "Apple", "iPad", osIOS
		info.OSVersion = firstInt(reIOSVersion, sig)
		info.IsTablet = true
		info.CameraPosition = "top-left corner of the back"
		info.InstructionsKey = "device.instructions.ipad"
		info.WarningKey = "device.warning.ipad"
	case strings.Contains(sig, "iPhone"):
		matchIPhone(sig, &info)
	case reSamsung.MatchString(sig) || strings.Contains(strings.ToLower(sig), "samsung"):
		matchSamsung(sig, &info)
	case rePixel.MatchString(sig):
		matchPixel(sig, &info)
	case reHuawei.MatchString(sig):
		setFamily(&info, "Huawei", reHuawei.FindString(sig), "top-left (vertical module)", "huawei")
		if strings.Contains(strings.ToLower(sig), "honor") {
			info.Brand = "Honor"
		}
	case reXiaomi.MatchString(sig):
		setFamily(&info, "Xiaomi", reXiaomi.FindString(sig), "top-left (vertical module)", "xiaomi")
	case strings.Contains(strings.ToLower(sig), "oneplus"):
		setFamily(&info, "OnePlus", "OnePlus", "top-center (vertical lens row)", "oneplus")
	case reOppoFamily.MatchString(sig):
		setFamily(&info, oppoBrand(sig), reOppoFamily.FindString(sig), "top-left (vertical module)", "bbk")
	case reMotorola.MatchString(sig):
		setFamily(&info, "Motorola", reMotorola.FindString(sig), "top-left (square module)", "motorola")
	case reSony.MatchString(sig):
		setFamily(&info, "Sony", reSony.FindString(sig), "top-left (vertical lens row)", "sony")
	case strings.Contains(sig, "Nokia"):
		setFamily(&info, "Nokia", "Nokia", "top-center (round module)", "nokia")
	case reLG.MatchString(sig):
		setFamily(&info, "LG", strings.TrimSpace(reLG.FindString(sig)), "top-center", "lg")
		info.WarningKey = "device.warning.lg"
	}

	if strings.Contains(sig, "Tablet") {
		info.IsTablet = true
	}
	if info.IsTablet {
		info.HasTorch = false
	}
	if info.WarningKey == "" && info.OS == osAndroid && info.OSVersion > 0 && info.OSVersion < 8 {
		info.WarningKey = "device.warning.old_android"
	}
	return info
}

func matchIPhone(sig string, info *models.DeviceInfo) {
	info.Brand, info.OS = "Apple", osIOS
	info.OSVersion = firstInt(reIOSVersion, sig)
	info.InstructionsKey = "device.instructions.iphone"
	info.Model = "iPhone"
	info.CameraPosition = "top-left"

	m := reIPhoneGen.FindStringSubmatch(sig)
	if m == nil {
		if strings.Contains(sig, "iPhone X") {
			info.Model = "iPhone X"
			info.CameraPosition = "top-left (vertical dual lens)"
		}
		return
	}
	gen, _ := strconv.Atoi(m[1])
	info.Model = strings.TrimSpace(m[0])
	pro := strings.Contains(m[0], "Pro")
	switch {
	case gen >= 11 && pro:
		info.CameraPosition = "top-left (triple lens module)"
	case gen >= 13:
		info.CameraPosition = "top-left (diagonal dual lens)"
	case gen >= 11:
		info.CameraPosition = "top-left (square dual lens module)"
	case gen == 10:
		info.CameraPosition = "top-left (vertical dual lens)"
	case gen < 7:
		info.CameraPosition = "top-left (single lens)"
	}
	if gen < 7 {
		info.WarningKey = "device.warning.old_iphone"
	}
}

func matchSamsung(sig string, info *models.DeviceInfo) {
	info.Brand, info.Model = "Samsung", "Galaxy"
	info.InstructionsKey = "device.instructions.samsung"
	info.CameraPosition = "top-center"
	if info.OS == "" {
		info.OS = osAndroid
	}

	m := reSamsung.FindStringSubmatch(sig)
	if m == nil {
		return
	}
	info.Model = m[0]
	series := m[1]
	// Four-digit codes (SM-G5500) share the generation of their first three digits.
	num, _ := strconv.Atoi(m[2][:3])
	switch series {
	case "T", "X", "P":
		info.IsTablet = true
		info.CameraPosition = "top-left corner of the back"
	case "G":
		if num < 970 {
			info.CameraPosition = "top-center (vertical)"
		} else {
			info.CameraPosition = "top-left (vertical lens row)"
		}
		if num < 950 {
			info.WarningKey = "device.warning.old_samsung"
		}
	case "S":
		info.CameraPosition = "top-left (vertical lens row)"
	case "N":
		info.CameraPosition = "top-left (vertical lens row)"
	case "A", "M":
		info.CameraPosition = "top-left (vertical module)"
	}
}

func matchPixel(sig string, info *models.DeviceInfo) {
	info.Brand, info.OS = "Google", osAndroid
	info.InstructionsKey = "device.instructions.pixel"
	m := rePixel.FindStringSubmatch(sig)
	info.Model = strings.TrimSpace(m[0])
	gen, _ := strconv.Atoi(m[1])
	switch {
	case gen >= 6:
		info.CameraPosition = "camera bar across the upper back"
	case gen >= 4:
		info.CameraPosition = "top-left (square module)"
	default:
		info.CameraPosition = "top-left"
	}
}

func setFamily(info *models.DeviceInfo, brand, model, camera, family string) {
	info.Brand = brand
	info.Model = model
	if info.Model == "" {
		info.Model = brand
	}
	info.CameraPosition = camera
	info.InstructionsKey = fmt.Sprintf("device.instructions.%s", family)
	if info.OS == "" {
		info.OS = osAndroid
	}
}

func oppoBrand(sig string) string {
	l := strings.ToLower(sig)
	switch {
	case strings.Contains(l, "realme") || strings.Contains(sig, "RMX"):
		return "Realme"
	case strings.Contains(l, "vivo"):
		return "Vivo"
	default:
		return "Oppo"
	}
}

func firstInt(re *regexp.Regexp, s string) int {
	m := re.FindStringSubmatch(s)
	if len(m) < 2 || m[1] == "" {
		return 0
	}
	v, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	return v
}
