package main

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/loykin/cgirun/internal/constants"
	"github.com/loykin/cgirun/internal/util"
)

var rootCmd = &cobra.Command{
	Use:           "cgirun",
	Short:         "Simulate HTTP requests against CGI scripts without a web server",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	v := viper.GetViper()
	v.SetDefault("config", constants.DefaultConfigPath)

	// Environment variables support: CGIRUN_CONFIG, CGIRUN_INTERPRETER, ...
	v.SetEnvPrefix(constants.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	pf := rootCmd.PersistentFlags()
	pf.String("config", v.GetString("config"), "path to a config yaml")
	pf.String("interpreter", "", "CGI interpreter binary (overrides config)")
	pf.String("document-root", "", "document root scripts are resolved against (overrides config)")
	_ = v.BindPFlag("config", pf.Lookup("config"))
	_ = v.BindPFlag("interpreter", pf.Lookup("interpreter"))
	_ = v.BindPFlag("document_root", pf.Lookup("document-root"))

	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(postCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(historyCmd)
}

// loadConfig reads the config file named by --config. A missing file is
// only an error when the path was chosen explicitly. The returned dir is
// the scenario directory: scenario_dir, else the config file's directory,
// else the default.
func loadConfig(v *viper.Viper) (*ConfigDoc, string, error) {
	doc := &ConfigDoc{}
	path := strings.TrimSpace(v.GetString("config"))
	baseDir := constants.DefaultScenarioDir
	if path != "" {
		if err := doc.Load(path); err != nil {
			explicit := path != constants.DefaultConfigPath
			if explicit || !errors.Is(err, os.ErrNotExist) {
				return nil, "", err
			}
		} else {
			baseDir = filepath.Dir(path)
		}
	}
	if s, ok := util.TrimEmptyCheck(v.GetString("interpreter")); ok {
		doc.Interpreter = s
	}
	if s, ok := util.TrimEmptyCheck(v.GetString("document_root")); ok {
		doc.DocumentRoot = s
	}
	if dir, ok := util.TrimEmptyCheck(doc.ScenarioDir); ok {
		baseDir = dir
	}
	if err := doc.SetupLogging(); err != nil {
		return nil, "", err
	}
	return doc, baseDir, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		exitHandler.LogFatalError(err, "command execution failed")
	}
}
