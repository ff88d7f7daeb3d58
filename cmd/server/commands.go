package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/aethra/makazi/internal/auth"
	"github.com/aethra/makazi/internal/directory"
	"github.com/aethra/makazi/internal/models"
	"github.com/aethra/makazi/internal/users"
)

// withApp runs fn against a bootstrapped app
func withApp(fn func(ctx context.Context, a *app, c *cli.Command) error) cli.ActionFunc {
	return func(ctx context.Context, c *cli.Command) error {
		a, err := bootstrap(ctx)
		if err != nil {
			return err
		}
		defer a.close()
		return fn(ctx, a, c)
	}
}

func optionalUint(c *cli.Command, name string) *uint {
	if !c.IsSet(name) {
		return nil
	}
	v := c.Uint(name)
	return &v
}

func seedCommand() *cli.Command {
	return &cli.Command{
		Name:  "seed",
		Usage: "Seed the permission catalog and the first super admin",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "username", Value: "superadmin"},
			&cli.StringFlag{Name: "password", Usage: "super admin password; skipped when empty"},
			&cli.StringFlag{Name: "full-name", Value: "System Administrator"},
		},
		Action: withApp(func(ctx context.Context, a *app, c *cli.Command) error {
			if err := auth.SeedCatalog(ctx, a.db); err != nil {
				return err
			}
			fmt.Println("Permission catalog seeded")

			if c.String("password") == "" {
				return nil
			}
			var count int64
			if err := a.db.WithContext(ctx).Model(&models.User{}).
				Where("role = ?", models.RoleSuperAdmin).Count(&count).Error; err != nil {
				return err
			}
			if count > 0 {
				fmt.Println("A super admin already exists")
				return nil
			}
			u, err := users.NewService(a.db, a.logger).Create(ctx, nil, users.CreateInput{
				FullName: c.String("full-name"),
				Username: c.String("username"),
				Password: c.String("password"),
				Role:     string(models.RoleSuperAdmin),
			})
			if err != nil {
				return err
			}
			fmt.Printf("Super admin created: %s (id %d)\n", u.Username, u.ID)
			return nil
		}),
	}
}

func userCommand() *cli.Command {
	return &cli.Command{
		Name:  "user",
		Usage: "Manage accounts",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List accounts",
				Flags: []cli.Flag{&cli.StringFlag{Name: "role"}},
				Action: withApp(func(ctx context.Context, a *app, c *cli.Command) error {
					list, err := users.NewService(a.db, a.logger).List(ctx, c.String("role"))
					if err != nil {
						return err
					}
					for _, u := range list {
						state := "active"
						if !u.IsActive {
							state = "disabled"
						}
						fmt.Printf("%d\t%s\t%s\t%s\t%s\n", u.ID, u.Username, u.Role, u.FullName, state)
					}
					return nil
				}),
			},
			{
				Name:  "create",
				Usage: "Create an account",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "username", Required: true},
					&cli.StringFlag{Name: "password", Required: true},
					&cli.StringFlag{Name: "full-name", Required: true},
					&cli.StringFlag{Name: "role", Required: true, Usage: "super_admin, admin, weo, veo or data_collector"},
					&cli.UintFlag{Name: "ward-id"},
					&cli.UintFlag{Name: "village-id"},
				},
				Action: withApp(func(ctx context.Context, a *app, c *cli.Command) error {
					u, err := users.NewService(a.db, a.logger).Create(ctx, nil, users.CreateInput{
						FullName:  c.String("full-name"),
						Username:  c.String("username"),
						Password:  c.String("password"),
						Role:      c.String("role"),
						WardID:    optionalUint(c, "ward-id"),
						VillageID: optionalUint(c, "village-id"),
					})
					if err != nil {
						return err
					}
					fmt.Printf("User created: %s (id %d, %s)\n", u.Username, u.ID, u.Role)
					return nil
				}),
			},
			{
				Name:  "set-password",
				Usage: "Reset the password of an account",
				Flags: []cli.Flag{
					&cli.UintFlag{Name: "id", Required: true},
					&cli.StringFlag{Name: "password", Required: true},
				},
				Action: withApp(func(ctx context.Context, a *app, c *cli.Command) error {
					if err := users.NewService(a.db, a.logger).SetPassword(ctx, nil, c.Uint("id"), c.String("password")); err != nil {
						return err
					}
					fmt.Println("Password updated")
					return nil
				}),
			},
		},
	}
}

func wardCommand() *cli.Command {
	return &cli.Command{
		Name:  "ward",
		Usage: "Manage wards",
		Commands: []*cli.Command{
			{
				Name: "list",
				Action: withApp(func(ctx context.Context, a *app, _ *cli.Command) error {
					wards, err := directory.NewService(a.db, nil, a.logger).ListWards(ctx, false)
					if err != nil {
						return err
					}
					for _, w := range wards {
						fmt.Printf("%d\t%s\t%s\tactive=%t\n", w.ID, w.Code, w.Name, w.IsActive)
					}
					return nil
				}),
			},
			{
				Name: "create",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "name", Required: true},
					&cli.StringFlag{Name: "code", Required: true},
					&cli.StringFlag{Name: "description"},
				},
				Action: withApp(func(ctx context.Context, a *app, c *cli.Command) error {
					w, err := directory.NewService(a.db, nil, a.logger).CreateWard(ctx, nil, directory.WardInput{
						Name:        c.String("name"),
						Code:        c.String("code"),
						Description: c.String("description"),
					})
					if err != nil {
						return err
					}
					fmt.Printf("Ward created: %s (id %d)\n", w.Name, w.ID)
					return nil
				}),
			},
		},
	}
}

func villageCommand() *cli.Command {
	return &cli.Command{
		Name:  "village",
		Usage: "Manage villages",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Flags: []cli.Flag{&cli.UintFlag{Name: "ward-id"}},
				Action: withApp(func(ctx context.Context, a *app, c *cli.Command) error {
					villages, err := directory.NewService(a.db, nil, a.logger).ListVillages(ctx, c.Uint("ward-id"), false)
					if err != nil {
						return err
					}
					for _, v := range villages {
						fmt.Printf("%d\t%d\t%s\t%s\tactive=%t\n", v.ID, v.WardID, v.Code, v.Name, v.IsActive)
					}
					return nil
				}),
			},
			{
				Name: "create",
				Flags: []cli.Flag{
					&cli.UintFlag{Name: "ward-id", Required: true},
					&cli.StringFlag{Name: "name", Required: true},
					&cli.StringFlag{Name: "code", Required: true},
					&cli.StringFlag{Name: "description"},
				},
				Action: withApp(func(ctx context.Context, a *app, c *cli.Command) error {
					v, err := directory.NewService(a.db, nil, a.logger).CreateVillage(ctx, nil, directory.VillageInput{
						WardID:      c.Uint("ward-id"),
						Name:        c.String("name"),
						Code:        c.String("code"),
						Description: c.String("description"),
					})
					if err != nil {
						return err
					}
					fmt.Printf("Village created: %s (id %d)\n", v.Name, v.ID)
					return nil
				}),
			},
		},
	}
}
