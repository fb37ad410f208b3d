package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"vuload/internal/dummy"
	"vuload/internal/logging"
)

var dummyCmd = &cobra.Command{
	Use:   "dummy",
	Short: "Run a local warehouse stub to test against",
	RunE: func(cmd *cobra.Command, args []string) error {
		log, err := logging.New(viper.GetString("log_level"), viper.GetString("log_format"))
		if err != nil {
			return err
		}
		defer log.Sync()

		cfg := dummy.DefaultConfig()
		f := cmd.Flags()
		cfg.Port, _ = f.GetInt("port")
		cfg.Username, _ = f.GetString("username")
		cfg.Password, _ = f.GetString("password")
		cfg.Latency, _ = f.GetDuration("latency")
		cfg.Jitter, _ = f.GetDuration("jitter")
		cfg.ThrottleRate, _ = f.GetFloat64("throttle-rate")
		cfg.FailRate, _ = f.GetFloat64("fail-rate")
		cfg.AuditForbidden, _ = f.GetBool("audit-forbidden")

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return dummy.New(cfg, log).Start(ctx)
	},
}

func init() {
	def := dummy.DefaultConfig()
	f := dummyCmd.Flags()
	f.IntP("port", "p", def.Port, "port to listen on")
	f.String("username", def.Username, "accepted login user")
	f.String("password", def.Password, "accepted login password")
	f.Duration("latency", def.Latency, "base latency added to every request")
	f.Duration("jitter", def.Jitter, "random extra latency up to this much")
	f.Float64("throttle-rate", 0, "fraction of API requests answered 429")
	f.Float64("fail-rate", 0, "fraction of API requests answered 500")
	f.Bool("audit-forbidden", false, "answer 403 on the audit log endpoint")
}
