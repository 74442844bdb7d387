package apiclient

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

const (
	FlagAPIURL  = "api-url"
	FlagTimeout = "api-timeout"
	FlagCaller  = "caller"
)

// AddFlags registers the API endpoint flags on cmd
func AddFlags(cmd *cobra.Command) {
	def := DefaultConfig()
	cmd.Flags().String(FlagAPIURL, def.BaseURL, "termvault REST API endpoint")
	cmd.Flags().Duration(FlagTimeout, def.Timeout, "request timeout")
}

// AddCallerFlag registers the required --caller flag used by state-changing commands
func AddCallerFlag(cmd *cobra.Command) {
	cmd.Flags().String(FlagCaller, "", "bech32 address acting as the caller")
	_ = cmd.MarkFlagRequired(FlagCaller)
}

// FromCmd builds a client from the flags registered by AddFlags
func FromCmd(cmd *cobra.Command) (*Client, error) {
	cfg := DefaultConfig()
	var err error
	if cfg.BaseURL, err = cmd.Flags().GetString(FlagAPIURL); err != nil {
		return nil, err
	}
	if cfg.Timeout, err = cmd.Flags().GetDuration(FlagTimeout); err != nil {
		return nil, err
	}
	return New(cfg), nil
}

// Caller returns the --caller flag value
func Caller(cmd *cobra.Command) (string, error) {
	caller, err := cmd.Flags().GetString(FlagCaller)
	if err != nil {
		return "", err
	}
	if caller == "" {
		return "", fmt.Errorf("--%s is required", FlagCaller)
	}
	return caller, nil
}

// Print writes v as indented JSON to the command output
func Print(cmd *cobra.Command, v interface{}) error {
	output, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	cmd.Println(string(output))
	return nil
}
