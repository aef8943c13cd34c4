package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/callproxy/internal/audit"
	"github.com/ppiankov/callproxy/internal/settings"
)

var (
	auditPath      string
	auditCaller    string
	auditTarget    string
	auditQueueHash string
	auditType      string
	auditSince     time.Duration
	auditLimit     int
	auditTailN     int
	auditJSON      bool
)

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(auditVerifyCmd, auditQueryCmd, auditTailCmd)
	auditCmd.PersistentFlags().StringVar(&auditPath, "log", "", "Audit log path (default: audit_log from config)")

	auditQueryCmd.Flags().StringVar(&auditCaller, "caller", "", "Filter by caller principal")
	auditQueryCmd.Flags().StringVar(&auditTarget, "target", "", "Filter by target principal")
	auditQueryCmd.Flags().StringVar(&auditQueueHash, "hash", "", "Filter by queue hash")
	auditQueryCmd.Flags().StringVar(&auditType, "type", "", "Filter by event type (decision, forward, resolution, ...)")
	auditQueryCmd.Flags().DurationVar(&auditSince, "since", 0, "Only entries newer than this")
	auditQueryCmd.Flags().IntVarP(&auditLimit, "limit", "n", 0, "Show only the last N entries")
	auditCmd.PersistentFlags().BoolVar(&auditJSON, "json", false, "Print JSON")

	auditTailCmd.Flags().IntVarP(&auditTailN, "lines", "n", 20, "Number of entries")
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Inspect the hash-chained audit log",
}

var auditVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify the audit log hash chain",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := resolveAuditPath()
		if err != nil {
			return err
		}
		res := audit.Verify(path)
		if !res.Valid {
			if res.ErrorLine > 0 {
				return fmt.Errorf("audit log broken at line %d: %s", res.ErrorLine, res.Error)
			}
			return fmt.Errorf("audit log invalid: %s", res.Error)
		}
		fmt.Printf("OK: %d entries, chain intact\n", res.Lines)
		return nil
	},
}

var auditQueryCmd = &cobra.Command{
	Use:   "query",
	Short: "Show audit entries as a timeline",
	RunE: func(cmd *cobra.Command, args []string) error {
		filter := audit.Filter{
			Caller:    auditCaller,
			Target:    auditTarget,
			QueueHash: auditQueueHash,
			Type:      auditType,
			Limit:     auditLimit,
		}
		if auditSince > 0 {
			filter.From = time.Now().Add(-auditSince)
		}
		return runAuditQuery(filter)
	},
}

var auditTailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Show the most recent audit entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAuditQuery(audit.Filter{Limit: auditTailN})
	},
}

func runAuditQuery(filter audit.Filter) error {
	path, err := resolveAuditPath()
	if err != nil {
		return err
	}
	res, err := audit.Query(path, filter)
	if err != nil {
		return err
	}
	if auditJSON {
		out, err := audit.FormatJSON(res)
		if err != nil {
			return err
		}
		fmt.Println(out)
		return nil
	}
	fmt.Fprint(os.Stdout, audit.FormatTimeline(res))
	return nil
}

func resolveAuditPath() (string, error) {
	if auditPath != "" {
		return auditPath, nil
	}
	cfg, err := settings.LoadConfig(configPath)
	if err != nil {
		return "", err
	}
	if cfg.AuditLog == "" {
		return "", fmt.Errorf("no audit log configured; pass --log")
	}
	return settings.ExpandHome(cfg.AuditLog), nil
}
