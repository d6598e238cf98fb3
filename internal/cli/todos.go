package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/nhle/todo-sync/internal/gateway"
	"github.com/nhle/todo-sync/internal/model"
	"github.com/nhle/todo-sync/internal/ui/todolist"
)

// withGateway runs fn against the gateway of the configured backend.
func (o *RootOptions) withGateway(cmd *cobra.Command, fn func(ctx context.Context, gw *gateway.Gateway) error) error {
	ctx := cmd.Context()
	e, err := o.openEnv(ctx, o.clientLogger(cmd))
	if err != nil {
		return err
	}
	defer e.Close()

	err = fn(ctx, e.gateway)
	if errors.Is(err, gateway.ErrNotAuthenticated) {
		return fmt.Errorf("%w: run `todo auth signin` first", err)
	}
	return err
}

// NewListCommand creates the list command.
func NewListCommand(opts *RootOptions) *cobra.Command {
	var filter string

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List your todos, newest first",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := todolist.ParseFilter(filter)
			if err != nil {
				return err
			}
			return opts.withGateway(cmd, func(ctx context.Context, gw *gateway.Gateway) error {
				todos, err := gw.FetchAll(ctx)
				if err != nil {
					return err
				}
				writeTodos(cmd.OutOrStdout(), f, todos)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&filter, "filter", "f", "all", "all, active or completed")

	return cmd
}

// writeTodos prints the todos passing f as a table, or the empty-list
// message.
func writeTodos(w io.Writer, f todolist.Filter, todos []model.Todo) {
	shown := f.Apply(todos)
	if len(shown) == 0 {
		fmt.Fprintln(w, f.EmptyMessage(len(todos)))
		return
	}

	rows := make([][]string, 0, len(shown))
	for _, t := range shown {
		done := " "
		if t.Completed {
			done = "x"
		}
		rows = append(rows, []string{t.ID, done, t.Text, t.CreatedAt.Local().Format("2006-01-02 15:04")})
	}
	tbl := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("ID", "DONE", "TEXT", "CREATED").
		Rows(rows...)
	fmt.Fprintln(w, tbl.Render())

	active := todolist.FilterActive.Apply(todos)
	fmt.Fprintf(w, "%d active / %d total\n", len(active), len(todos))
}

// NewAddCommand creates the add command.
func NewAddCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "add <text>...",
		Short: "Add a todo",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.TrimSpace(strings.Join(args, " "))
			if text == "" {
				return errors.New("todo text is empty")
			}
			return opts.withGateway(cmd, func(ctx context.Context, gw *gateway.Gateway) error {
				todo, err := gw.Add(ctx, text)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Added %s\n", todo.ID)
				return nil
			})
		},
	}
}

// NewDoneCommand creates the done command.
func NewDoneCommand(opts *RootOptions) *cobra.Command {
	var undo bool

	cmd := &cobra.Command{
		Use:   "done <id>",
		Short: "Mark a todo as completed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withGateway(cmd, func(ctx context.Context, gw *gateway.Gateway) error {
				todo, err := gw.Update(ctx, args[0], model.SetCompleted(!undo))
				if err != nil {
					return err
				}
				state := "completed"
				if !todo.Completed {
					state = "active"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s is %s\n", todo.ID, state)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&undo, "undo", false, "mark the todo active again")

	return cmd
}

// NewEditCommand creates the edit command.
func NewEditCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "edit <id> <text>...",
		Short: "Change the text of a todo",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.TrimSpace(strings.Join(args[1:], " "))
			if text == "" {
				return errors.New("todo text is empty")
			}
			return opts.withGateway(cmd, func(ctx context.Context, gw *gateway.Gateway) error {
				todo, err := gw.Update(ctx, args[0], model.SetText(text))
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Updated %s\n", todo.ID)
				return nil
			})
		},
	}
}

// NewRemoveCommand creates the rm command.
func NewRemoveCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "rm <id>",
		Aliases: []string{"delete"},
		Short:   "Delete a todo",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withGateway(cmd, func(ctx context.Context, gw *gateway.Gateway) error {
				if err := gw.Remove(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
				return nil
			})
		},
	}
}
