// wip-admin manages API user accounts from the command line.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"golang.org/x/term"

	"github.com/tsireporting/wip-report/internal/auth"
	"github.com/tsireporting/wip-report/internal/config"
	"github.com/tsireporting/wip-report/internal/store"
	"github.com/tsireporting/wip-report/internal/store/sqlite"
	"github.com/tsireporting/wip-report/pkg/constants"
)

func main() {
	configLocation := flag.String("config", constants.DefaultConfigFile, "path to configuration file")
	username := flag.String("username", "", "username for the new account")
	role := flag.String("role", auth.RoleViewer, "account role (admin or viewer)")
	flag.Parse()

	if flag.NArg() != 1 || flag.Arg(0) != "create-user" {
		fmt.Fprintln(os.Stderr, "usage: wip-admin [flags] create-user")
		os.Exit(2)
	}
	if *username == "" {
		fmt.Fprintln(os.Stderr, "wip-admin: -username is required")
		os.Exit(2)
	}
	if *role != auth.RoleAdmin && *role != auth.RoleViewer {
		fmt.Fprintf(os.Stderr, "wip-admin: invalid role %q\n", *role)
		os.Exit(2)
	}

	conf, err := config.LoadConfiguration(*configLocation)
	if err != nil {
		fmt.Fprintf(os.Stderr, "wip-admin: failed to load configuration at %s: %v\n", *configLocation, err)
		os.Exit(1)
	}

	fmt.Fprint(os.Stderr, "Password: ")
	password, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "wip-admin: failed to read password: %v\n", err)
		os.Exit(1)
	}
	if len(password) == 0 {
		fmt.Fprintln(os.Stderr, "wip-admin: password must not be empty")
		os.Exit(1)
	}

	hash, err := auth.HashPassword(string(password))
	if err != nil {
		fmt.Fprintf(os.Stderr, "wip-admin: %v\n", err)
		os.Exit(1)
	}

	st, err := sqlite.New(conf.Database.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "wip-admin: failed to open database at %s: %v\n", conf.Database.Path, err)
		os.Exit(1)
	}
	defer func() {
		_ = st.Close()
	}()

	user := &store.User{
		Username:     *username,
		PasswordHash: hash,
		Role:         *role,
		IsActive:     true,
	}
	if err := st.CreateUser(context.Background(), user); err != nil {
		fmt.Fprintf(os.Stderr, "wip-admin: failed to create user: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("created %s user %s (%s)\n", user.Role, user.Username, user.ID)
}
