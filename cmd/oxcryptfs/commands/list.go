package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/oxcrypt/oxcryptfs/mount"
)

var listWatch bool

func init() {
	listCmd.Flags().BoolVar(&listWatch, "watch", false, "keep printing as mounts are added or removed elsewhere")
}

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List active managed mounts",
	RunE:    runList,
}

func runList(cmd *cobra.Command, args []string) error {
	store, err := openStateStore()
	if err != nil {
		return exitError(ExitMountFailure, err)
	}

	if err := printMounts(store); err != nil {
		return exitError(ExitMountFailure, err)
	}
	if !listWatch {
		return nil
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := store.Watch(ctx, func() {
		fmt.Println()
		printMounts(store)
	}); err != nil {
		return exitError(ExitMountFailure, err)
	}
	<-ctx.Done()
	return nil
}

func printMounts(store *mount.Store) error {
	records, err := store.List()
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("no active mounts")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "MOUNTPOINT\tVAULT\tBACKEND\tPID")
	for _, rec := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", rec.Mountpoint, rec.VaultPath, rec.Backend, rec.PID)
	}
	return w.Flush()
}
