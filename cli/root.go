package cli

import (
	"github.com/flowmatic/flowmatic/pkg/version"
	"github.com/spf13/cobra"
)

// RootCmd builds the flowmatic command tree.
func RootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:     "flowmatic",
		Short:   "Flowmatic - declarative multi-step LM workflow engine",
		Long:    "Flowmatic runs chain and router workflows over file-based agent definitions with hot reload.",
		Version: version.String(),
	}
	root.PersistentFlags().String("env-file", ".env", "Path to an env file loaded before configuration")
	root.PersistentFlags().String("base-path", "", "Catalog base directory (overrides FLOWMATIC_GENAI_BASE_PATH)")
	root.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error")
	root.PersistentFlags().Bool("log-json", false, "Emit logs as JSON")
	root.AddCommand(ServeCmd())
	return root
}
