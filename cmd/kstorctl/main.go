// Command kstorctl is the KStor command line client, grounded on
// cmd/metalo's command-tree/flags/table-output shape (actions/flags.go,
// actions/common.go, actions/subaccounts.go) adapted from MetaLocker's
// HTTP transport to KStor's one-UNIX-socket-connection-per-request wire
// protocol (spec.md §6).
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"kstor/internal/client"
	"kstor/internal/config"
	"kstor/internal/wire"
)

const Version = "1.0.0"

var commonFlags = []cli.Flag{
	&cli.BoolFlag{Name: "debug", Usage: "if true, enable debug mode"},
	&cli.StringFlag{
		Name:    "socket",
		Usage:   "path to the kstord UNIX socket",
		EnvVars: []string{"KSTOR_SOCKET"},
	},
	&cli.StringFlag{
		Name:    "user",
		Usage:   "login",
		EnvVars: []string{"KSTOR_USER"},
	},
	&cli.StringFlag{
		Name:    "password",
		Usage:   "password",
		EnvVars: []string{"KSTOR_PASSWORD"},
	},
}

func main() {
	app := cli.NewApp()
	app.Name = "kstorctl"
	app.Usage = "KStor command line client"
	app.Version = Version
	app.Flags = commonFlags

	app.Before = func(c *cli.Context) error {
		if c.Bool("debug") {
			zerolog.SetGlobalLevel(zerolog.DebugLevel)
		} else {
			zerolog.SetGlobalLevel(zerolog.WarnLevel)
		}
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Stamp})
		return nil
	}

	app.Commands = []*cli.Command{
		{
			Name:   "ping",
			Usage:  "check connectivity to kstord",
			Action: cmdPing,
		},
		{
			Name:  "group",
			Usage: "manage groups",
			Subcommands: []*cli.Command{
				{Name: "create", Usage: "create a group", ArgsUsage: "<name>", Action: cmdGroupCreate},
				{Name: "rename", Usage: "rename a group", ArgsUsage: "<group-id> <new-name>", Action: cmdGroupRename},
				{Name: "delete", Usage: "delete a group", ArgsUsage: "<group-id>", Action: cmdGroupDelete},
				{Name: "search", Usage: "search groups by name glob", ArgsUsage: "[glob]", Action: cmdGroupSearch},
				{Name: "get", Usage: "show a group and its members", ArgsUsage: "<group-id>", Action: cmdGroupGet},
				{Name: "add-user", Usage: "add a user to a group", ArgsUsage: "<group-id> <user-id>", Action: cmdGroupAddUser},
				{Name: "remove-user", Usage: "remove a user from a group", ArgsUsage: "<group-id> <user-id>", Action: cmdGroupRemoveUser},
			},
		},
		{
			Name:  "user",
			Usage: "manage users",
			Subcommands: []*cli.Command{
				{Name: "create", Usage: "create a user", ArgsUsage: "<login> <name>", Action: cmdUserCreate},
				{Name: "activate", Usage: "activate a new account, setting its initial password", ArgsUsage: "<login> <new-password>", Action: cmdUserActivate},
				{Name: "change-password", Usage: "change the caller's password", ArgsUsage: "<new-password>", Action: cmdUserChangePassword},
			},
		},
		{
			Name:  "secret",
			Usage: "manage secrets",
			Subcommands: []*cli.Command{
				{Name: "create", Usage: "create a secret", ArgsUsage: "<plaintext> <group-id>...", Action: cmdSecretCreate},
				{Name: "search", Usage: "search secrets by metadata", Action: cmdSecretSearch,
					Flags: []cli.Flag{
						&cli.StringFlag{Name: "app"}, &cli.StringFlag{Name: "database"},
						&cli.StringFlag{Name: "login"}, &cli.StringFlag{Name: "server"},
						&cli.StringFlag{Name: "url"},
					}},
				{Name: "unlock", Usage: "reveal a secret's plaintext", ArgsUsage: "<secret-id>", Action: cmdSecretUnlock},
				{Name: "update-meta", Usage: "update a secret's metadata", ArgsUsage: "<secret-id>", Action: cmdSecretUpdateMeta,
					Flags: []cli.Flag{
						&cli.StringFlag{Name: "app"}, &cli.StringFlag{Name: "database"},
						&cli.StringFlag{Name: "login"}, &cli.StringFlag{Name: "server"},
						&cli.StringFlag{Name: "url"},
					}},
				{Name: "update-value", Usage: "update a secret's plaintext value", ArgsUsage: "<secret-id> <plaintext>", Action: cmdSecretUpdateValue},
				{Name: "delete", Usage: "delete a secret", ArgsUsage: "<secret-id>", Action: cmdSecretDelete},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal().Err(err).Msg("kstorctl command failed")
	}
}

// newClient builds a Client from --socket/--user/--password, prompting
// on the terminal for whichever of user/password wasn't given, the same
// ReadCredential fallback cmd/metalo/actions/common.go uses.
func newClient(c *cli.Context) *client.Client {
	user := readCredential(c.String("user"), "Login: ", false)
	password := readCredential(c.String("password"), "Password: ", true)
	return client.New(socketPath(c), user, password)
}

// socketPath resolves --socket, falling back to $HOME/.kstor/kstor.sock,
// mirroring config.DefaultDir()'s layout for kstord's own socket setting.
func socketPath(c *cli.Context) string {
	if sock := c.String("socket"); sock != "" {
		return sock
	}
	return config.DefaultDir() + string(os.PathSeparator) + "kstor.sock"
}

func cmdPing(c *cli.Context) error {
	cl := newClient(c)
	var pong wire.PongArgs
	if err := cl.Call(c.Context, wire.TypePing, wire.PingArgs{Payload: "ping"}, &pong); err != nil {
		return cli.Exit(err, OperationFailed)
	}
	fmt.Println("pong:", pong.Payload)
	return nil
}

func cmdGroupCreate(c *cli.Context) error {
	if c.Args().Len() != 1 {
		return cli.Exit("please specify the group name", InvalidParameter)
	}
	cl := newClient(c)
	var created wire.GroupCreatedArgs
	if err := cl.Call(c.Context, wire.TypeGroupCreate, wire.GroupCreateArgs{Name: c.Args().Get(0)}, &created); err != nil {
		return cli.Exit(err, OperationFailed)
	}
	fmt.Printf("created group %s (%s)\n", created.Name, created.GroupID)
	return nil
}

func cmdGroupRename(c *cli.Context) error {
	if c.Args().Len() != 2 {
		return cli.Exit("please specify the group id and the new name", InvalidParameter)
	}
	cl := newClient(c)
	var updated wire.GroupUpdatedArgs
	args := wire.GroupRenameArgs{GroupID: c.Args().Get(0), NewName: c.Args().Get(1)}
	if err := cl.Call(c.Context, wire.TypeGroupRename, args, &updated); err != nil {
		return cli.Exit(err, OperationFailed)
	}
	fmt.Println("renamed group", updated.GroupID)
	return nil
}

func cmdGroupDelete(c *cli.Context) error {
	if c.Args().Len() != 1 {
		return cli.Exit("please specify the group id", InvalidParameter)
	}
	cl := newClient(c)
	var deleted wire.GroupDeletedArgs
	if err := cl.Call(c.Context, wire.TypeGroupDelete, wire.GroupDeleteArgs{GroupID: c.Args().Get(0)}, &deleted); err != nil {
		return cli.Exit(err, OperationFailed)
	}
	fmt.Println("deleted group", deleted.GroupID)
	return nil
}

func cmdGroupSearch(c *cli.Context) error {
	cl := newClient(c)
	var list wire.GroupListArgs
	if err := cl.Call(c.Context, wire.TypeGroupSearch, wire.GroupSearchArgs{NameGlob: c.Args().First()}, &list); err != nil {
		return cli.Exit(err, OperationFailed)
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Group ID", "Name"})
	table.SetBorders(tablewriter.Border{Left: true, Top: false, Right: true, Bottom: false})
	table.SetCenterSeparator("|")
	for _, g := range list.Groups {
		table.Append([]string{g.GroupID, g.Name})
	}
	table.Render()
	return nil
}

func cmdGroupGet(c *cli.Context) error {
	if c.Args().Len() != 1 {
		return cli.Exit("please specify the group id", InvalidParameter)
	}
	cl := newClient(c)
	var info wire.GroupInfoArgs
	if err := cl.Call(c.Context, wire.TypeGroupGet, wire.GroupGetArgs{GroupID: c.Args().Get(0)}, &info); err != nil {
		return cli.Exit(err, OperationFailed)
	}

	fmt.Printf("%s (%s)\n", info.Name, info.GroupID)
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"User ID", "Login", "Name"})
	table.SetBorders(tablewriter.Border{Left: true, Top: false, Right: true, Bottom: false})
	table.SetCenterSeparator("|")
	for _, m := range info.Members {
		table.Append([]string{m.UserID, m.Login, m.Name})
	}
	table.Render()
	return nil
}

func cmdGroupAddUser(c *cli.Context) error {
	if c.Args().Len() != 2 {
		return cli.Exit("please specify the group id and the user id", InvalidParameter)
	}
	cl := newClient(c)
	var updated wire.GroupUpdatedArgs
	args := wire.GroupAddUserArgs{GroupID: c.Args().Get(0), UserID: c.Args().Get(1)}
	if err := cl.Call(c.Context, wire.TypeGroupAddUser, args, &updated); err != nil {
		return cli.Exit(err, OperationFailed)
	}
	fmt.Println("added user to group", updated.GroupID)
	return nil
}

func cmdGroupRemoveUser(c *cli.Context) error {
	if c.Args().Len() != 2 {
		return cli.Exit("please specify the group id and the user id", InvalidParameter)
	}
	cl := newClient(c)
	var updated wire.GroupUpdatedArgs
	args := wire.GroupRemoveUserArgs{GroupID: c.Args().Get(0), UserID: c.Args().Get(1)}
	if err := cl.Call(c.Context, wire.TypeGroupRemoveUser, args, &updated); err != nil {
		return cli.Exit(err, OperationFailed)
	}
	fmt.Println("removed user from group", updated.GroupID)
	return nil
}

func cmdUserCreate(c *cli.Context) error {
	if c.Args().Len() != 2 {
		return cli.Exit("please specify the login and display name", InvalidParameter)
	}
	cl := newClient(c)
	var created wire.UserCreatedArgs
	args := wire.UserCreateArgs{
		Login:                c.Args().Get(0),
		Name:                 c.Args().Get(1),
		TokenLifespanSeconds: int64(7 * 24 * time.Hour / time.Second),
	}
	if err := cl.Call(c.Context, wire.TypeUserCreate, args, &created); err != nil {
		return cli.Exit(err, OperationFailed)
	}
	fmt.Printf("created user %s (%s), activation token: %s\n", created.Login, created.UserID, created.Token)
	return nil
}

// cmdUserActivate implements user_activate (spec.md §4.3): the request
// carries login+password like any other credentialed request, but here
// password is the account's brand new passphrase — the server checks a
// pending, still-valid ActivationToken exists for the account instead of
// requiring the client to present the token itself.
func cmdUserActivate(c *cli.Context) error {
	if c.Args().Len() != 2 {
		return cli.Exit("please specify login and new password", InvalidParameter)
	}
	cl := client.New(socketPath(c), c.Args().Get(0), c.Args().Get(1))
	var updated wire.UserUpdatedArgs
	if err := cl.Call(c.Context, wire.TypeUserActivate, struct{}{}, &updated); err != nil {
		return cli.Exit(err, OperationFailed)
	}
	fmt.Println("activated user", updated.UserID)
	return nil
}

func cmdUserChangePassword(c *cli.Context) error {
	if c.Args().Len() != 1 {
		return cli.Exit("please specify the new password", InvalidParameter)
	}
	cl := newClient(c)
	var changed wire.UserPasswordChangedArgs
	args := wire.UserChangePasswordArgs{NewPassword: c.Args().Get(0)}
	if err := cl.Call(c.Context, wire.TypeUserChangePassword, args, &changed); err != nil {
		return cli.Exit(err, OperationFailed)
	}
	fmt.Println("password changed for user", changed.UserID)
	return nil
}

func cmdSecretCreate(c *cli.Context) error {
	if c.Args().Len() < 2 {
		return cli.Exit("please specify the plaintext and at least one group id", InvalidParameter)
	}
	cl := newClient(c)
	var created wire.SecretCreatedArgs
	args := wire.SecretCreateArgs{Plaintext: c.Args().Get(0), GroupIDs: c.Args().Slice()[1:]}
	if err := cl.Call(c.Context, wire.TypeSecretCreate, args, &created); err != nil {
		return cli.Exit(err, OperationFailed)
	}
	fmt.Println("created secret", created.SecretID)
	return nil
}

func cmdSecretSearch(c *cli.Context) error {
	cl := newClient(c)
	args := wire.SecretSearchArgs{Meta: metaFromFlags(c)}
	var list wire.SecretListArgs
	if err := cl.Call(c.Context, wire.TypeSecretSearch, args, &list); err != nil {
		return cli.Exit(err, OperationFailed)
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Secret ID", "App", "Login", "Server", "URL"})
	table.SetBorders(tablewriter.Border{Left: true, Top: false, Right: true, Bottom: false})
	table.SetCenterSeparator("|")
	for _, s := range list.Secrets {
		table.Append([]string{s.SecretID, s.Meta.App, s.Meta.Login, s.Meta.Server, s.Meta.URL})
	}
	table.Render()
	return nil
}

func cmdSecretUnlock(c *cli.Context) error {
	if c.Args().Len() != 1 {
		return cli.Exit("please specify the secret id", InvalidParameter)
	}
	cl := newClient(c)
	var value wire.SecretValueArgs
	if err := cl.Call(c.Context, wire.TypeSecretUnlock, wire.SecretUnlockArgs{SecretID: c.Args().Get(0)}, &value); err != nil {
		return cli.Exit(err, OperationFailed)
	}
	fmt.Println(value.Plaintext)
	return nil
}

func cmdSecretUpdateMeta(c *cli.Context) error {
	if c.Args().Len() != 1 {
		return cli.Exit("please specify the secret id", InvalidParameter)
	}
	cl := newClient(c)
	var updated wire.SecretUpdatedArgs
	args := wire.SecretUpdateMetaArgs{SecretID: c.Args().Get(0), Meta: metaFromFlags(c)}
	if err := cl.Call(c.Context, wire.TypeSecretUpdateMeta, args, &updated); err != nil {
		return cli.Exit(err, OperationFailed)
	}
	fmt.Println("updated secret metadata", updated.SecretID)
	return nil
}

func cmdSecretUpdateValue(c *cli.Context) error {
	if c.Args().Len() != 2 {
		return cli.Exit("please specify the secret id and the new plaintext", InvalidParameter)
	}
	cl := newClient(c)
	var updated wire.SecretUpdatedArgs
	args := wire.SecretUpdateValueArgs{SecretID: c.Args().Get(0), Plaintext: c.Args().Get(1)}
	if err := cl.Call(c.Context, wire.TypeSecretUpdateValue, args, &updated); err != nil {
		return cli.Exit(err, OperationFailed)
	}
	fmt.Println("updated secret value", updated.SecretID)
	return nil
}

func cmdSecretDelete(c *cli.Context) error {
	if c.Args().Len() != 1 {
		return cli.Exit("please specify the secret id", InvalidParameter)
	}
	cl := newClient(c)
	var deleted wire.SecretDeletedArgs
	if err := cl.Call(c.Context, wire.TypeSecretDelete, wire.SecretDeleteArgs{SecretID: c.Args().Get(0)}, &deleted); err != nil {
		return cli.Exit(err, OperationFailed)
	}
	fmt.Println("deleted secret", deleted.SecretID)
	return nil
}
