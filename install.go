package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"golang.org/x/term"

	"github.com/kestelyn/bioguard/guard"
)

const manifestTemplate = `{
  "name": "com.kestelyn.bioguard",
  "description": "Biometric credential host",
  "path": "PATH",
  "type": "stdio",
  "allowed_extensions": ["bioguard@kestelyn.dev"],
  "allowed_origins": ["chrome-extension://bioguardchromeextensionid/"]
}
`

// install provisions the host: the polkit policy on Linux, native messaging
// manifests for detected browsers, and the credential itself.
func install(g *guard.Guard, logger *slog.Logger) error {
	if runtime.GOOS == "linux" {
		if err := installPolkitPolicy(); err != nil {
			return err
		}
	}

	fmt.Println("Detecting browsers...")
	for _, startPath := range []string{".config", ".mozilla"} {
		if err := detectAndInstallBrowsers(startPath); err != nil {
			return fmt.Errorf("detect browsers under %s: %w", startPath, err)
		}
	}

	if !g.Available() {
		logger.Warn("no authentication factors currently available; storing anyway")
	}

	fmt.Fprint(os.Stderr, "Paste API credential: ")
	credential, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return fmt.Errorf("read credential: %w", err)
	}
	if len(credential) == 0 {
		return fmt.Errorf("empty credential")
	}
	if err := g.Store(credential); err != nil {
		return fmt.Errorf("store credential: %w", err)
	}
	for i := range credential {
		credential[i] = 0
	}

	logger.Info("credential provisioned")
	fmt.Println("Done!")
	return nil
}

func installPolkitPolicy() error {
	fmt.Println("Copying polkit policy...")
	workdir, err := os.Getwd()
	if err != nil {
		return err
	}
	policy := filepath.Join(workdir, "auth", "policies", "com.kestelyn.bioguard.policy")
	cmd := exec.Command("pkexec", "cp", policy, "/usr/share/polkit-1/actions/")
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	_ = cmd.Run()

	if _, err := os.Stat("/usr/share/polkit-1/actions/com.kestelyn.bioguard.policy"); err != nil {
		return fmt.Errorf("polkit policy not installed: %w", err)
	}
	return nil
}

// detectAndInstallBrowsers walks a config subtree looking for native
// messaging host directories and drops the manifest into each.
func detectAndInstallBrowsers(startPath string) error {
	home, err := os.UserHomeDir()
	if err != nil {
		return err
	}
	exe, err := os.Executable()
	if err != nil {
		return err
	}
	manifest := strings.Replace(manifestTemplate, "PATH", exe, 1)

	return filepath.Walk(filepath.Join(home, startPath), func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		rel, err := filepath.Rel(home, path)
		if err != nil || strings.Count(rel, string(filepath.Separator)) > 3 {
			return nil
		}
		if !info.IsDir() {
			return nil
		}
		switch info.Name() {
		case "native-messaging-hosts":
			fmt.Printf("Found mozilla-like browser: %s\n", path)
		case "NativeMessagingHosts":
			fmt.Printf("Found chrome-like browser: %s\n", path)
		default:
			return nil
		}
		return os.WriteFile(filepath.Join(path, appID+".json"), []byte(manifest), 0o644)
	})
}
