package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cast"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func init() {
	cmd.AddCommand(cmdConfig)
	cmdConfig.AddCommand(cmdConfigGet)
	cmdConfig.AddCommand(cmdConfigSet)
	cmdConfig.AddCommand(cmdConfigShow)
}

var (
	cmdConfig = &cobra.Command{
		Use:   "config",
		Short: "Configure your domainscan instance",
	}

	cmdConfigGet = &cobra.Command{
		Use:     "get",
		Short:   "Get a config value",
		Example: "  domainscan config get nameservers",
		Args:    cobra.ExactArgs(1),
		Run: func(command *cobra.Command, args []string) {
			cfgVal, err := cfg.Get(args[0])
			if err != nil {
				log.Fatal().Err(err).Msg("could not get config")
			}

			fmt.Println(args[0] + ": " + cast.ToString(cfgVal))
		},
	}

	cmdConfigSet = &cobra.Command{
		Use:     "set",
		Short:   "Set a config value",
		Example: "  domainscan config set nameservers 8.8.8.8,9.9.9.9",
		Args:    cobra.ExactArgs(2),
		Run: func(command *cobra.Command, args []string) {
			if err := cfg.Set(args[0], args[1]); err != nil {
				log.Fatal().Err(err).Msg("could not set config")
			}

			fmt.Println("Successfully set " + args[0] + " as " + args[1])
		},
	}

	cmdConfigShow = &cobra.Command{
		Use:     "show",
		Short:   "Print full config",
		Example: "  domainscan config show",
		Args:    cobra.ExactArgs(0),
		Run: func(command *cobra.Command, args []string) {
			fmt.Println(cast.ToString(cfg.Nameservers) + " " + cast.ToString(cfg.DefaultScanners))
		},
	}
)

// Config mirrors the on-disk ~/.config/domainscan/config.yaml file.
type Config struct {
	Nameservers     []string `json:"nameservers" yaml:"nameservers"`
	DefaultScanners []string `json:"defaultScanners" yaml:"defaultScanners"`
}

// NewConfig loads (or initializes) the viper-backed config file rooted at
// dir, the same layout the teacher's own config command uses.
func NewConfig(dir string) (*Config, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(dir)

	viper.SetDefault("nameservers", []string{})
	viper.SetDefault("defaultScanners", []string{"dns"})

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}

		if err := viper.SafeWriteConfigAs(dir + slash + "config.yaml"); err != nil {
			return nil, err
		}
	}

	return &Config{
		Nameservers:     viper.GetStringSlice("nameservers"),
		DefaultScanners: viper.GetStringSlice("defaultScanners"),
	}, nil
}

func (c *Config) Get(key string) (interface{}, error) {
	switch key {
	case "nameservers":
		return viper.Get(key), nil
	case "defaultScanners":
		return viper.Get(key), nil
	default:
		return "", errors.New("invalid config key")
	}
}

func (c *Config) Set(key string, value string) error {
	switch key {
	case "nameservers", "defaultScanners":
		viper.Set(key, strings.Split(value, ","))
	default:
		return errors.New("invalid config key")
	}

	return viper.WriteConfig()
}
