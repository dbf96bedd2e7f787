package cli

import (
	"fmt"
	"os"
	"strings"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/david/licitacoes/internal/logging"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "licitacoes",
	Short: "Extract, browse and export open PNCP bidding opportunities.",
	Long: `licitacoes downloads the open bidding opportunities published on the
Portal Nacional de Contratações Públicas, keeps a raw and a clean snapshot on
disk and serves the clean one for filtering and Excel export.`,
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
	SilenceUsage: true,
}

// Execute runs the root command. Called once by main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.licitacoes.yaml)")
	rootCmd.PersistentFlags().StringP("loglevel", "l", "info", "Set log level. Available: debug, info, warn, error, fatal")
	rootCmd.PersistentFlags().String("snapshot-dir", ".", "Directory holding the raw and clean snapshots")
	viper.BindPFlag("snapshot.dir", rootCmd.PersistentFlags().Lookup("snapshot-dir"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := homedir.Dir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
		viper.AddConfigPath(home)
		viper.SetConfigName(".licitacoes")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("LICITACOES")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("snapshot.dir", ".")
	viper.SetDefault("server.port", "8081")
	viper.SetDefault("auth.jwt_secret", "")

	levelString, _ := rootCmd.PersistentFlags().GetString("loglevel")
	if err := logging.SetLogLevel(levelString); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			logging.Log.Warnf("Could not read config file: %v", err)
		}
		return
	}
	logging.Log.Debugf("Using config file %s", viper.ConfigFileUsed())
}
