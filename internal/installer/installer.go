// Package installer detects a pre-existing runnable artifact in a server
// directory, or otherwise resolves and fetches/builds one, staging it
// there.
package installer

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/forgehost/panel/internal/apierr"
	"github.com/forgehost/panel/internal/cache"
	"github.com/forgehost/panel/internal/catalog"
	"github.com/forgehost/panel/internal/hostexec"
	"github.com/forgehost/panel/internal/model"
	"github.com/forgehost/panel/internal/resolver"
)

const installerTimeout = 10 * time.Minute

// DescriptorKind tells the Supervisor how to launch the process.
type DescriptorKind string

const (
	DescriptorScript DescriptorKind = "script"
	DescriptorJar    DescriptorKind = "jar"
)

// Descriptor is the runnable descriptor returned by Install.
type Descriptor struct {
	Kind DescriptorKind
	Path string
}

var scriptNames = []string{"run.sh", "start.sh", "run.bat", "start.bat"}

var engineKeywords = []string{
	"server", "forge", "neoforge", "fabric", "paper", "spigot", "bukkit", "purpur", "folia", "minecraft",
}

// Installer is the Artifact Installer (C4).
type Installer struct {
	catalogClient *catalog.Client
	cache         *cache.Cache
	resolver      *resolver.Resolver
	exec          hostexec.HostExecutor
	log           *zap.Logger
}

// New returns an Installer.
func New(catalogClient *catalog.Client, artifactCache *cache.Cache, res *resolver.Resolver, exec hostexec.HostExecutor, log *zap.Logger) *Installer {
	return &Installer{catalogClient: catalogClient, cache: artifactCache, resolver: res, exec: exec, log: log}
}

// Install materializes a runnable descriptor inside serverDir.
func (in *Installer) Install(ctx context.Context, serverDir string, engine model.Engine, version string) (Descriptor, error) {
	if d, ok, err := DetectExisting(serverDir); err != nil {
		return Descriptor{}, err
	} else if ok {
		return d, nil
	}

	plan, err := in.resolver.Resolve(ctx, engine, version)
	if err != nil {
		return Descriptor{}, err
	}

	switch plan.Kind {
	case resolver.PlanDirectJar:
		return in.installDirectJar(ctx, serverDir, engine, plan.URL)
	case resolver.PlanInstallerRun:
		return in.runInstaller(ctx, serverDir, plan)
	default:
		return Descriptor{}, apierr.New(apierr.Internal, "unknown fetch plan kind", nil)
	}
}

// DetectExisting scans serverDir for a pre-existing script or jar: launch
// scripts take priority over jars, and jars matching a known engine
// keyword take priority over an alphabetically-first fallback.
func DetectExisting(serverDir string) (Descriptor, bool, error) {
	for _, name := range scriptNames {
		p := filepath.Join(serverDir, name)
		if fileExists(p) {
			return Descriptor{Kind: DescriptorScript, Path: p}, true, nil
		}
	}

	entries, err := os.ReadDir(serverDir)
	if err != nil {
		if os.IsNotExist(err) {
			return Descriptor{}, false, nil
		}
		return Descriptor{}, false, apierr.Wrap(err)
	}

	var jars []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".jar") {
			continue
		}
		lower := strings.ToLower(name)
		if strings.Contains(lower, "installer") {
			continue
		}
		jars = append(jars, name)
	}
	if len(jars) == 0 {
		return Descriptor{}, false, nil
	}
	sort.Strings(jars)

	for _, keyword := range engineKeywords {
		for _, jar := range jars {
			if strings.Contains(strings.ToLower(jar), keyword) {
				return Descriptor{Kind: DescriptorJar, Path: filepath.Join(serverDir, jar)}, true, nil
			}
		}
	}
	return Descriptor{Kind: DescriptorJar, Path: filepath.Join(serverDir, jars[0])}, true, nil
}

func fileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}

func (in *Installer) installDirectJar(ctx context.Context, serverDir string, engine model.Engine, url string) (Descriptor, error) {
	data, err := in.fetchWithCache(ctx, engine.Lowercase(), url)
	if err != nil {
		return Descriptor{}, err
	}

	jarName := engine.Lowercase() + "-server.jar"
	dest := filepath.Join(serverDir, jarName)
	if err := os.WriteFile(dest, data, 0o644); err != nil {
		return Descriptor{}, apierr.Wrap(err)
	}
	return Descriptor{Kind: DescriptorJar, Path: dest}, nil
}

func (in *Installer) fetchWithCache(ctx context.Context, cacheKey, url string) ([]byte, error) {
	if hash, ok := in.cache.Lookup(cacheKey, url); ok {
		r, err := in.cache.Open(hash)
		if err == nil {
			defer r.Close()
			buf := new(bytes.Buffer)
			if _, err := buf.ReadFrom(r); err == nil {
				return buf.Bytes(), nil
			}
		}
	}

	data, err := in.catalogClient.Download(ctx, url)
	if err != nil {
		return nil, err
	}
	hash, _, err := in.cache.Put(bytes.NewReader(data))
	if err != nil {
		return nil, apierr.Wrap(err)
	}
	in.cache.Remember(cacheKey, url, hash)
	return data, nil
}

// runInstaller downloads the installer and executes it, time-boxed at 10
// minutes, then re-detects and deletes the installer jar on success.
func (in *Installer) runInstaller(ctx context.Context, serverDir string, plan resolver.FetchPlan) (Descriptor, error) {
	data, err := in.fetchWithCache(ctx, "installer", plan.URL)
	if err != nil {
		return Descriptor{}, err
	}

	installerPath := filepath.Join(serverDir, "installer.jar")
	if err := os.WriteFile(installerPath, data, 0o644); err != nil {
		return Descriptor{}, apierr.Wrap(err)
	}

	runCtx, cancel := context.WithTimeout(ctx, installerTimeout)
	defer cancel()

	cmd := in.exec.Command(runCtx, serverDir, plan.Argv)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		tail := tailLines(stderr.String(), 20)
		return Descriptor{}, apierr.New(apierr.InstallerFailed, fmt.Sprintf("installer exited non-zero: %v", err), map[string]any{"stderr_tail": tail})
	}

	desc, ok, err := DetectExisting(serverDir)
	if err != nil {
		return Descriptor{}, err
	}
	if !ok {
		return Descriptor{}, apierr.New(apierr.InstallerFailed, "installer completed but produced no runnable artifact", nil)
	}
	_ = os.Remove(installerPath)
	return desc, nil
}

func tailLines(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) <= n {
		return strings.Join(lines, "\n")
	}
	return strings.Join(lines[len(lines)-n:], "\n")
}
