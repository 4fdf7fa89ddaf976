package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/klimkalender/klimkalender-cms/internal/utils"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

var cfgFile string

const (
	LOGO = `  _                 _     _           _           _
 | |__   ___  _   _| | __| | ___ _ __| |__   ___ | |_
 | '_ \ / _ \| | | | |/ _' |/ _ \ '__| '_ \ / _ \| __|
 | |_) | (_) | |_| | | (_| |  __/ |  | |_) | (_) | |_
 |_.__/ \___/ \__,_|_|\__,_|\___|_|  |_.__/ \___/ \__|

`
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "boulderbot",
	Short: "Finds climbing events and keeps the Klimkalender in sync with them.",
	Long: LOGO + `boulderbot scrapes climbing halls and federations for upcoming events, classifies them
as competition or not, and reconciles them with the events published on the calendar.`,
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.boulderbot.yaml)")

	// Global flags
	rootCmd.PersistentFlags().StringP("loglevel", "l", "info", "Set log level. Available: debug, info, warn, error, fatal")
	rootCmd.PersistentFlags().String("dbpath", "", "Path to SQLite DB file (default: ~/.config/boulderbot/boulderbot.sqlite)")
	viper.BindPFlag("database.path", rootCmd.PersistentFlags().Lookup("dbpath"))
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
		viper.SetConfigName(".boulderbot")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("boulderbot")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	viper.BindEnv("openai.api_key", "BOULDERBOT_OPENAI_API_KEY", "OPENAI_API_KEY", "CHATGPT_API_KEY")

	// Set defaults for all keys
	viper.SetDefault("openai.api_key", "")
	viper.SetDefault("openai.model", "gpt-4o-mini")
	viper.SetDefault("openai.endpoint", "")
	viper.SetDefault("openai.timeout", "45s")
	viper.SetDefault("database.driver", "sqlite")
	viper.SetDefault("database.path", "")
	viper.SetDefault("database.dsn", "")
	viper.SetDefault("database.max_conns", 4)
	viper.SetDefault("database.via_bouncer", false)
	viper.SetDefault("blob.dir", "")
	viper.SetDefault("blob.image_bucket", "event-images")
	viper.SetDefault("scrape.concurrency", 4)
	viper.SetDefault("scrape.timeout", "30s")
	viper.SetDefault("scrape.rps", 2.0)
	viper.SetDefault("scrape.retries", 3)
	viper.SetDefault("scrape.intro_generic", "")
	viper.SetDefault("classify.rules", "")
	viper.SetDefault("run.max_minutes", 5)
	viper.SetDefault("run.log_retention_days", 7)
	viper.SetDefault("run.user_email", "")
	viper.SetDefault("server.listen", ":8080")
	viper.SetDefault("server.token", "")
	viper.SetDefault("server.username", "")
	viper.SetDefault("server.password", "")
	viper.SetDefault("server.interval", "0s")
	viper.SetDefault("server.trigger_every", "1m")

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found; create it with defaults.
			home, _ := homedir.Dir()
			configPath := home + "/.boulderbot.yaml"
			if err := viper.SafeWriteConfigAs(configPath); err != nil {
				fmt.Printf("Error creating config file: %s", err)
			}
		}
	}

	// Init log library
	levelString, _ := rootCmd.PersistentFlags().GetString("loglevel")
	utils.SetLogLevel(levelString)
}
