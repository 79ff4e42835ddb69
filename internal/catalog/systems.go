package catalog

import (
	"sort"
	"strings"
)

// SystemMapping ties a catalog category to its output folder name and the
// payload extensions expected for that system. Folder names follow the
// ES-DE es_systems.xml convention so the output tree drops straight into a
// frontend library.
type SystemMapping struct {
	Category   string
	Folder     string
	FullName   string
	Extensions []string
}

var systemMappings = map[string]SystemMapping{
	// Nintendo consoles
	"NES":            {"NES", "nes", "Nintendo Entertainment System", []string{".nes", ".zip", ".7z"}},
	"Nintendo":       {"Nintendo", "nes", "Nintendo Entertainment System", []string{".nes", ".zip", ".7z"}},
	"SNES":           {"SNES", "snes", "Super Nintendo", []string{".sfc", ".smc", ".zip", ".7z"}},
	"Super Nintendo": {"Super Nintendo", "snes", "Super Nintendo", []string{".sfc", ".smc", ".zip", ".7z"}},
	"N64":            {"N64", "n64", "Nintendo 64", []string{".n64", ".z64", ".v64", ".zip", ".7z"}},
	"Nintendo 64":    {"Nintendo 64", "n64", "Nintendo 64", []string{".n64", ".z64", ".v64", ".zip", ".7z"}},
	"GameCube":       {"GameCube", "gc", "Nintendo GameCube", []string{".iso", ".gcm", ".gcz", ".rvz", ".ciso", ".7z"}},
	"Wii":            {"Wii", "wii", "Nintendo Wii", []string{".iso", ".wbfs", ".rvz", ".wia", ".gcz"}},
	"WiiWare":        {"WiiWare", "wii", "Nintendo Wii", []string{".wad"}},

	// Nintendo handhelds
	"GB":               {"GB", "gb", "Nintendo Game Boy", []string{".gb", ".zip", ".7z"}},
	"Game Boy":         {"Game Boy", "gb", "Nintendo Game Boy", []string{".gb", ".zip", ".7z"}},
	"GBC":              {"GBC", "gbc", "Nintendo Game Boy Color", []string{".gbc", ".zip", ".7z"}},
	"Game Boy Color":   {"Game Boy Color", "gbc", "Nintendo Game Boy Color", []string{".gbc", ".zip", ".7z"}},
	"GBA":              {"GBA", "gba", "Nintendo Game Boy Advance", []string{".gba", ".zip", ".7z"}},
	"Game Boy Advance": {"Game Boy Advance", "gba", "Nintendo Game Boy Advance", []string{".gba", ".zip", ".7z"}},
	"DS":               {"DS", "nds", "Nintendo DS", []string{".nds", ".zip", ".7z"}},
	"Nintendo DS":      {"Nintendo DS", "nds", "Nintendo DS", []string{".nds", ".zip", ".7z"}},
	"3DS":              {"3DS", "n3ds", "Nintendo 3DS", []string{".3ds", ".cia", ".cxi", ".app"}},
	"Nintendo 3DS":     {"Nintendo 3DS", "n3ds", "Nintendo 3DS", []string{".3ds", ".cia", ".cxi", ".app"}},
	"Virtual Boy":      {"Virtual Boy", "virtualboy", "Nintendo Virtual Boy", []string{".vb", ".vboy", ".zip", ".7z"}},

	// Sega
	"Genesis":       {"Genesis", "genesis", "Sega Genesis", []string{".md", ".gen", ".bin", ".zip", ".7z"}},
	"Mega Drive":    {"Mega Drive", "megadrive", "Sega Mega Drive", []string{".md", ".gen", ".bin", ".zip", ".7z"}},
	"Master System": {"Master System", "mastersystem", "Sega Master System", []string{".sms", ".zip", ".7z"}},
	"Sega CD":       {"Sega CD", "segacd", "Sega CD", []string{".chd", ".cue", ".iso"}},
	"Mega-CD":       {"Mega-CD", "megacd", "Sega Mega-CD", []string{".chd", ".cue", ".iso"}},
	"32X":           {"32X", "sega32x", "Sega 32X", []string{".32x", ".zip", ".7z"}},
	"Sega 32X":      {"Sega 32X", "sega32x", "Sega 32X", []string{".32x", ".zip", ".7z"}},
	"Saturn":        {"Saturn", "saturn", "Sega Saturn", []string{".chd", ".cue", ".iso", ".zip", ".7z"}},
	"Dreamcast":     {"Dreamcast", "dreamcast", "Sega Dreamcast", []string{".chd", ".cdi", ".gdi", ".cue"}},
	"Game Gear":     {"Game Gear", "gamegear", "Sega Game Gear", []string{".gg", ".zip", ".7z"}},

	// Sony
	"PS1":                 {"PS1", "psx", "Sony PlayStation", []string{".chd", ".cue", ".bin", ".iso", ".pbp", ".m3u"}},
	"PlayStation":         {"PlayStation", "psx", "Sony PlayStation", []string{".chd", ".cue", ".bin", ".iso", ".pbp", ".m3u"}},
	"PS2":                 {"PS2", "ps2", "Sony PlayStation 2", []string{".chd", ".iso", ".cso", ".gz"}},
	"PlayStation 2":       {"PlayStation 2", "ps2", "Sony PlayStation 2", []string{".chd", ".iso", ".cso", ".gz"}},
	"PS3":                 {"PS3", "ps3", "Sony PlayStation 3", []string{".iso", ".pkg"}},
	"PlayStation 3":       {"PlayStation 3", "ps3", "Sony PlayStation 3", []string{".iso", ".pkg"}},
	"PSP":                 {"PSP", "psp", "Sony PlayStation Portable", []string{".iso", ".cso", ".pbp", ".chd"}},
	"PlayStation Portable": {"PlayStation Portable", "psp", "Sony PlayStation Portable", []string{".iso", ".cso", ".pbp", ".chd"}},

	// Microsoft
	"Xbox":               {"Xbox", "xbox", "Microsoft Xbox", []string{".iso"}},
	"Xbox 360":           {"Xbox 360", "xbox360", "Microsoft Xbox 360", []string{".iso", ".xex"}},
	"Xbox 360 (Digital)": {"Xbox 360 (Digital)", "xbox360", "Microsoft Xbox 360", []string{".iso", ".xex"}},

	// Atari
	"Atari 2600": {"Atari 2600", "atari2600", "Atari 2600", []string{".a26", ".bin", ".zip", ".7z"}},
	"Atari 5200": {"Atari 5200", "atari5200", "Atari 5200", []string{".a52", ".bin", ".zip", ".7z"}},
	"Atari 7800": {"Atari 7800", "atari7800", "Atari 7800", []string{".a78", ".bin", ".zip", ".7z"}},
	"Jaguar":     {"Jaguar", "atarijaguar", "Atari Jaguar", []string{".j64", ".jag", ".zip", ".7z"}},
	"Jaguar CD":  {"Jaguar CD", "atarijaguarcd", "Atari Jaguar CD", []string{".cdi", ".cue"}},
	"Lynx":       {"Lynx", "atarilynx", "Atari Lynx", []string{".lnx", ".zip", ".7z"}},

	// NEC
	"TurboGrafx-16": {"TurboGrafx-16", "tg16", "NEC TurboGrafx-16", []string{".pce", ".zip", ".7z"}},
	"TurboGrafx-CD": {"TurboGrafx-CD", "tg-cd", "NEC TurboGrafx-CD", []string{".chd", ".cue"}},
	"PC Engine":     {"PC Engine", "pcengine", "NEC PC Engine", []string{".pce", ".zip", ".7z"}},
	"PC Engine CD":  {"PC Engine CD", "pcenginecd", "NEC PC Engine CD", []string{".chd", ".cue"}},

	// SNK
	"Neo Geo":              {"Neo Geo", "neogeo", "SNK Neo Geo", []string{".zip", ".7z"}},
	"Neo Geo CD":           {"Neo Geo CD", "neogeocd", "SNK Neo Geo CD", []string{".chd", ".cue"}},
	"Neo Geo Pocket":       {"Neo Geo Pocket", "ngp", "SNK Neo Geo Pocket", []string{".ngp", ".zip", ".7z"}},
	"Neo Geo Pocket Color": {"Neo Geo Pocket Color", "ngpc", "SNK Neo Geo Pocket Color", []string{".ngc", ".zip", ".7z"}},

	// Other
	"CD-i": {"CD-i", "cdimono1", "Philips CD-i", []string{".chd", ".cue", ".iso"}},
	"3DO":  {"3DO", "3do", "3DO Interactive Multiplayer", []string{".chd", ".cue", ".iso"}},
}

// fallbackROMExtensions covers common console media formats for categories
// with no mapping, and payload formats a mapped system may still ship in.
var fallbackROMExtensions = map[string]struct{}{
	".iso": {}, ".bin": {}, ".cue": {}, ".chd": {}, ".rvz": {}, ".gcz": {},
	".wbfs": {}, ".ciso": {}, ".nds": {}, ".gba": {}, ".gbc": {}, ".gb": {},
	".nes": {}, ".sfc": {}, ".smc": {}, ".n64": {}, ".z64": {}, ".v64": {},
	".md": {}, ".gen": {}, ".sms": {}, ".gg": {}, ".pce": {}, ".ngp": {},
	".ngc": {}, ".vb": {}, ".a26": {}, ".a52": {}, ".a78": {}, ".j64": {},
	".jag": {}, ".lnx": {}, ".32x": {}, ".cdi": {}, ".gdi": {},
}

// SystemFor returns the mapping for a category, if one exists.
func SystemFor(category string) (SystemMapping, bool) {
	m, ok := systemMappings[category]

	return m, ok
}

// FolderFor maps a category to its output folder. Unknown categories fall
// back to a lowercased, underscore-separated form of the category name.
func FolderFor(category string) string {
	if m, ok := systemMappings[category]; ok {
		return m.Folder
	}

	fallback := strings.ToLower(category)
	fallback = strings.ReplaceAll(fallback, " ", "_")
	fallback = strings.ReplaceAll(fallback, "-", "")

	return fallback
}

// ExpectedExtensions returns the payload extensions for a category, or the
// generic archive pair when the category is unmapped.
func ExpectedExtensions(category string) []string {
	if m, ok := systemMappings[category]; ok {
		return m.Extensions
	}

	return []string{".zip", ".7z"}
}

// IsROMExtension reports whether ext (with leading dot, any case) is a
// payload file for the category, per the system mapping or the broad
// fallback list.
func IsROMExtension(category, ext string) bool {
	ext = strings.ToLower(ext)

	for _, e := range ExpectedExtensions(category) {
		if e == ext {
			return true
		}
	}

	_, ok := fallbackROMExtensions[ext]

	return ok
}

// SupportedCategories lists every category with an explicit mapping, sorted.
func SupportedCategories() []string {
	out := make([]string, 0, len(systemMappings))
	for k := range systemMappings {
		out = append(out, k)
	}

	sort.Strings(out)

	return out
}
