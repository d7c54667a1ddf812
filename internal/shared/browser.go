package shared

import (
	"fmt"
	"net/url"
	"os/exec"
	"runtime"
)

var getRuntime = func() string { return runtime.GOOS }

// OpenBrowser shows a captcha or sign-in page in the default browser.
//
// Only absolute http and https URLs are accepted. The URL is passed as a single argument and never through a shell.
func OpenBrowser(target string) error {
	cmd, err := browserCommand(getRuntime(), target)
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to open browser: %w", err)
	}
	go cmd.Wait()
	return nil
}

func browserCommand(goos, target string) (*exec.Cmd, error) {
	u, err := url.Parse(target)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: refusing to open %q in a browser", ErrInvalidRequest, target)
	}

	switch goos {
	case "darwin":
		return exec.Command("open", u.String()), nil
	case "linux", "freebsd", "openbsd", "netbsd":
		return exec.Command("xdg-open", u.String()), nil
	case "windows":
		// cmd /c start splits the line on '&', which every query string carries.
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", u.String()), nil
	default:
		return nil, fmt.Errorf("unsupported platform: %s", goos)
	}
}
