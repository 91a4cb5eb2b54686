// Package configwriter renders a server's server.properties, EULA, and
// (for script-kind descriptors) JVM memory-args files into its server
// directory.
package configwriter

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/forgehost/panel/internal/model"
)

const (
	remoteConsolePortOffset = 10000
	remoteConsolePassword   = "forgehost"
)

// Write renders server.properties and eula.txt into dir for the given
// record.
func Write(dir string, rec model.ServerRecord) error {
	props := propertiesFor(rec)

	var b strings.Builder
	keys := orderedKeys()
	for _, k := range keys {
		fmt.Fprintf(&b, "%s=%s\n", k, props[k])
	}
	if err := os.WriteFile(filepath.Join(dir, "server.properties"), []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("configwriter: writing server.properties: %w", err)
	}

	eula := "eula=true\n"
	if err := os.WriteFile(filepath.Join(dir, "eula.txt"), []byte(eula), 0o644); err != nil {
		return fmt.Errorf("configwriter: writing eula.txt: %w", err)
	}
	return nil
}

func propertiesFor(rec model.ServerRecord) map[string]string {
	p := map[string]string{
		"difficulty":    rec.Options.Difficulty,
		"gamemode":      rec.Options.Gamemode,
		"pvp":           boolString(rec.Options.PVP),
		"white-list":    boolString(rec.Options.Whitelist),
		"online-mode":   boolString(rec.Options.OnlineMode),
		"max-players":   fmt.Sprintf("%d", rec.Options.MaxPlayers),
		"motd":          rec.Options.MOTD,
		"server-port":   fmt.Sprintf("%d", rec.Port),
		"enable-rcon":   "true",
		"rcon.port":     fmt.Sprintf("%d", rec.Port+remoteConsolePortOffset),
		"rcon.password": remoteConsolePassword,
	}
	if rec.Options.Seed != nil {
		p["level-seed"] = *rec.Options.Seed
	} else {
		p["level-seed"] = ""
	}
	return p
}

func orderedKeys() []string {
	return []string{
		"level-seed", "difficulty", "gamemode", "pvp", "white-list",
		"online-mode", "max-players", "motd", "server-port",
		"enable-rcon", "rcon.port", "rcon.password",
	}
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// WriteMemoryArgs writes user_jvm_args.txt for script-kind descriptors
// (Forge/NeoForge): "-Xmx{mem}M -Xms{min(mem,1024)}M" plus any user JVM
// options.
func WriteMemoryArgs(dir string, memMB int, userOpts string) error {
	minHeap := memMB
	if minHeap > 1024 {
		minHeap = 1024
	}
	line := fmt.Sprintf("-Xmx%dM -Xms%dM", memMB, minHeap)
	if userOpts != "" {
		line += " " + userOpts
	}
	if err := os.WriteFile(filepath.Join(dir, "user_jvm_args.txt"), []byte(line+"\n"), 0o644); err != nil {
		return fmt.Errorf("configwriter: writing user_jvm_args.txt: %w", err)
	}
	return nil
}
