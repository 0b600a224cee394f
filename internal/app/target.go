package app

import (
	"context"
	"fmt"
	"os"

	"github.com/vk/actiongrid/internal/config"
	"github.com/vk/actiongrid/internal/ctxlog"
	"github.com/vk/actiongrid/internal/localtarget"
	"github.com/vk/actiongrid/internal/sshtarget"
	"github.com/vk/actiongrid/internal/target"
)

// openTarget connects to the machine the workflow runs on.
func openTarget(ctx context.Context, tc *config.Target) (target.Target, error) {
	logger := ctxlog.FromContext(ctx)

	switch tc.Kind {
	case config.TargetLocal:
		logger.Debug("Using local target.", "workdir", tc.Workdir)
		return localtarget.New(tc.Workdir), nil
	case config.TargetSSH:
		var password string
		if tc.PasswordEnv != "" {
			password = os.Getenv(tc.PasswordEnv)
			if password == "" {
				return nil, fmt.Errorf("environment variable %s is empty", tc.PasswordEnv)
			}
		}
		return sshtarget.Dial(ctx, sshtarget.Config{
			Host:       tc.Host,
			Port:       tc.Port,
			User:       tc.User,
			KeyFile:    tc.KeyFile,
			Password:   password,
			KnownHosts: tc.KnownHosts,
			Insecure:   tc.Insecure,
			Workdir:    tc.Workdir,
			Timeout:    tc.Timeout,
		})
	default:
		return nil, fmt.Errorf("unknown target kind %q", tc.Kind)
	}
}
