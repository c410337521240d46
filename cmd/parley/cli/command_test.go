// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/spf13/pflag"
)

func TestCommand_Execute_DispatchesToSubcommand(t *testing.T) {
	var called string

	root := &Command{
		Name: "parley",
		Subcommands: []*Command{
			{
				Name: "version",
				Run: func(ctx context.Context, args []string) error {
					called = "version"
					return nil
				},
			},
			{
				Name: "login",
				Run: func(ctx context.Context, args []string) error {
					called = "login"
					return nil
				},
			},
		},
	}

	if err := root.Execute(context.Background(), []string{"login"}); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if called != "login" {
		t.Errorf("dispatched to %q, want %q", called, "login")
	}
}

func TestCommand_Execute_NestedSubcommands(t *testing.T) {
	var called string
	var receivedArgs []string

	root := &Command{
		Name: "parley",
		Subcommands: []*Command{
			{
				Name: "cache",
				Subcommands: []*Command{
					{
						Name: "inspect",
						Run: func(ctx context.Context, args []string) error {
							called = "cache inspect"
							receivedArgs = args
							return nil
						},
					},
				},
			},
		},
	}

	if err := root.Execute(context.Background(), []string{"cache", "inspect", "!room:example.org"}); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if called != "cache inspect" {
		t.Errorf("dispatched to %q, want %q", called, "cache inspect")
	}
	if len(receivedArgs) != 1 || receivedArgs[0] != "!room:example.org" {
		t.Errorf("args = %v, want [!room:example.org]", receivedArgs)
	}
}

func TestCommand_Execute_FlagParsing(t *testing.T) {
	var profile string
	var target string

	command := &Command{
		Name: "login",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("login", pflag.ContinueOnError)
			flagSet.StringVar(&profile, "profile", "default", "profile name")
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) > 0 {
				target = args[0]
			}
			return nil
		},
	}

	if err := command.Execute(context.Background(), []string{"--profile", "work", "@alice:example.org"}); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if profile != "work" {
		t.Errorf("profile = %q, want %q", profile, "work")
	}
	if target != "@alice:example.org" {
		t.Errorf("target = %q, want %q", target, "@alice:example.org")
	}
}

func TestCommand_Execute_UnknownFlagSuggestion(t *testing.T) {
	command := &Command{
		Name: "login",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("login", pflag.ContinueOnError)
			flagSet.String("profile", "default", "profile name")
			flagSet.String("password-file", "", "read the password from a file")
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error { return nil },
	}

	err := command.Execute(context.Background(), []string{"--porfile", "work"})
	if err == nil {
		t.Fatal("Execute() = nil, want error for unknown flag")
	}
	errStr := err.Error()
	if !strings.Contains(errStr, "did you mean --profile") {
		t.Errorf("error = %q, want suggestion for '--profile'", errStr)
	}
	// Suggestion should be on the same line as the error, not buried.
	if !strings.Contains(errStr, "porfile") {
		t.Errorf("error = %q, should mention the bad flag", errStr)
	}
	// Should include a pointer to --help.
	if !strings.Contains(errStr, "--help") {
		t.Errorf("error = %q, should point to --help", errStr)
	}
}

func TestCommand_Execute_UnknownFlagNoSuggestion(t *testing.T) {
	command := &Command{
		Name: "login",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("login", pflag.ContinueOnError)
			flagSet.String("profile", "default", "profile name")
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error { return nil },
	}

	err := command.Execute(context.Background(), []string{"--zzzzzzzzz"})
	if err == nil {
		t.Fatal("Execute() = nil, want error for unknown flag")
	}
	if strings.Contains(err.Error(), "did you mean") {
		t.Errorf("error = %q, should not suggest for distant flag", err.Error())
	}
	if !strings.Contains(err.Error(), "--help") {
		t.Errorf("error = %q, should point to --help", err.Error())
	}
}

func TestCommand_Execute_UnknownSubcommandSuggestion(t *testing.T) {
	root := &Command{
		Name: "parley",
		Subcommands: []*Command{
			{Name: "login"},
			{Name: "logout"},
			{Name: "cache"},
		},
	}

	err := root.Execute(context.Background(), []string{"logn"})
	if err == nil {
		t.Fatal("Execute() = nil, want error for unknown subcommand")
	}
	if !strings.Contains(err.Error(), "did you mean \"login\"") {
		t.Errorf("error = %q, want suggestion for 'login'", err.Error())
	}
}

func TestCommand_Execute_UnknownSubcommandNoSuggestion(t *testing.T) {
	root := &Command{
		Name: "parley",
		Subcommands: []*Command{
			{Name: "login"},
			{Name: "cache"},
		},
	}

	err := root.Execute(context.Background(), []string{"zzzzzzz"})
	if err == nil {
		t.Fatal("Execute() = nil, want error for unknown subcommand")
	}
	if strings.Contains(err.Error(), "did you mean") {
		t.Errorf("error = %q, should not contain suggestion for distant input", err.Error())
	}
}

func TestCommand_Execute_HelpFlag(t *testing.T) {
	for _, helpArg := range []string{"-h", "--help", "help"} {
		t.Run(helpArg, func(t *testing.T) {
			root := &Command{
				Name:    "parley",
				Summary: "Terminal Matrix client",
				Subcommands: []*Command{
					{Name: "login", Summary: "Log in and store a session"},
				},
			}

			err := root.Execute(context.Background(), []string{helpArg})
			if err != nil {
				t.Errorf("Execute(%q) error: %v", helpArg, err)
			}
		})
	}
}

func TestCommand_Execute_HelpViaFlagSet(t *testing.T) {
	// A --help after other flags reaches pflag, which reports
	// ErrHelp; that must surface as help output, not an error.
	command := &Command{
		Name: "login",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("login", pflag.ContinueOnError)
			flagSet.String("profile", "default", "profile name")
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error {
			t.Error("Run called for --help")
			return nil
		},
	}

	if err := command.Execute(context.Background(), []string{"--profile", "work", "--help"}); err != nil {
		t.Errorf("Execute() error: %v", err)
	}
}

func TestCommand_Execute_NoArgsShowsHelp(t *testing.T) {
	root := &Command{
		Name: "cache",
		Subcommands: []*Command{
			{Name: "stats", Summary: "Show cache statistics"},
		},
	}

	err := root.Execute(context.Background(), []string{})
	if err == nil {
		t.Fatal("Execute() = nil, want error for missing subcommand")
	}
	if !strings.Contains(err.Error(), "subcommand required") {
		t.Errorf("error = %q, want 'subcommand required'", err.Error())
	}
}

func TestCommand_PrintHelp(t *testing.T) {
	command := &Command{
		Name:        "parley",
		Description: "Terminal Matrix chat client.",
		Subcommands: []*Command{
			{Name: "login", Summary: "Log in and store a session"},
			{Name: "cache", Summary: "Inspect the local caches"},
			{Name: "version", Summary: "Print version information"},
		},
		Examples: []Example{
			{
				Description: "Log in to the default profile",
				Command:     "parley login",
			},
			{
				Description: "Show cache statistics for a profile",
				Command:     "parley cache stats --profile work",
			},
		},
	}

	var buffer bytes.Buffer
	command.PrintHelp(&buffer)
	output := buffer.String()

	// Verify structural elements are present.
	for _, want := range []string{
		"Terminal Matrix chat client.",
		"Usage:",
		"parley <command> [flags]",
		"Commands:",
		"login",
		"Log in and store a session",
		"cache",
		"Inspect the local caches",
		"Examples:",
		"parley login",
		"parley cache stats",
		"Run 'parley <command> --help'",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("help output missing %q\n\nFull output:\n%s", want, output)
		}
	}
}

func TestCommand_PrintHelp_WithFlags(t *testing.T) {
	command := &Command{
		Name:    "login",
		Summary: "Log in and store a session",
		Usage:   "parley login [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("login", pflag.ContinueOnError)
			flagSet.String("profile", "default", "profile name")
			flagSet.String("password-file", "", "read the password from a file")
			return flagSet
		},
	}

	var buffer bytes.Buffer
	command.PrintHelp(&buffer)
	output := buffer.String()

	for _, want := range []string{
		"parley login [flags]",
		"Flags:",
		"profile",
		"password-file",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("help output missing %q\n\nFull output:\n%s", want, output)
		}
	}
}

func TestCommand_FullName(t *testing.T) {
	root := &Command{Name: "parley"}
	cache := &Command{Name: "cache", parent: root}
	stats := &Command{Name: "stats", parent: cache}

	if got := root.fullName(); got != "parley" {
		t.Errorf("root.fullName() = %q, want %q", got, "parley")
	}
	if got := cache.fullName(); got != "parley cache" {
		t.Errorf("cache.fullName() = %q, want %q", got, "parley cache")
	}
	if got := stats.fullName(); got != "parley cache stats" {
		t.Errorf("stats.fullName() = %q, want %q", got, "parley cache stats")
	}
}

func TestExitError(t *testing.T) {
	err := &ExitError{Code: 3}
	if err.ExitCode() != 3 {
		t.Errorf("ExitCode() = %d, want 3", err.ExitCode())
	}
	if !strings.Contains(err.Error(), "3") {
		t.Errorf("Error() = %q, should mention the code", err.Error())
	}
}
