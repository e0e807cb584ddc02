// Command elektroid-cli is a scriptable frontend over the transfer
// engine: device discovery, filesystem browsing, sample/data transfer,
// and OS upgrades, driven from the shell instead of a GUI.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/pflag"

	elektroid "github.com/lammas/elektroid/elektroid"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := pflag.NewFlagSet("elektroid-cli", pflag.ContinueOnError)
	devNode := fs.StringP("device", "d", "", "MIDI device node (overrides config)")
	configPath := fs.StringP("config", "c", "", "path to config file")
	logLevel := fs.StringP("log-level", "v", "", "log verbosity (debug, info, warn, error)")

	if err := fs.Parse(args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	cfg := elektroid.DefaultConfig()
	if *configPath != "" {
		loaded, err := elektroid.LoadConfig(*configPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		cfg = loaded
	}
	if *devNode != "" {
		cfg.DevNode = *devNode
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	elektroid.SetLogLevel(cfg.LogLevel)

	rest := fs.Args()
	if len(rest) == 0 {
		printUsage()
		return 2
	}

	ctx := context.Background()
	switch rest[0] {
	case "devices":
		return cmdDevices()
	case "ls":
		return cmdLs(ctx, cfg, rest[1:])
	case "mkdir":
		return cmdMkdir(ctx, cfg, rest[1:])
	case "rm":
		return cmdRm(ctx, cfg, rest[1:])
	case "mv":
		return cmdMv(ctx, cfg, rest[1:])
	case "cp":
		return cmdCp(ctx, cfg, rest[1:])
	case "upload":
		return cmdUpload(ctx, cfg, rest[1:])
	case "download":
		return cmdDownload(ctx, cfg, rest[1:])
	case "stats":
		return cmdStats(ctx, cfg, rest[1:])
	case "os-upgrade":
		return cmdOSUpgrade(ctx, cfg, rest[1:])
	default:
		printUsage()
		return 2
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `usage: elektroid-cli [flags] <command> [args]

commands:
  devices                       list rawmidi devices
  ls <path>                     list a remote directory
  mkdir <path>                  create a remote directory
  rm <path>                     delete a remote file or directory
  mv <src> <dst>                move/rename a remote path
  cp <src> <dst>                copy a remote path
  upload <local> <remote>       upload a sample
  download <remote> <local>     download a sample
  stats [ram]                   print storage usage (+Drive, or RAM)
  os-upgrade <image>            flash a firmware image`)
}

func openBackend(ctx context.Context, cfg elektroid.Config) (*elektroid.Backend, error) {
	return elektroid.NewRegistry().Open(ctx, cfg.DevNode)
}

func cmdDevices() int {
	ports, err := elektroid.EnumeratePorts()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	for _, p := range ports {
		fmt.Printf("%s\t%s\t%s\n", p.DevNode, p.Name, p.Vendor)
	}
	return 0
}

func cmdLs(ctx context.Context, cfg elektroid.Config, args []string) int {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "ls: missing path")
		return 2
	}
	b, err := openBackend(ctx, cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer b.Destroy()

	if len(b.FSOps()) == 0 {
		fmt.Fprintln(os.Stderr, "ls: device exposes no filesystem")
		return 1
	}
	items, err := b.FSOps()[0].ReadDir(ctx, b, args[0])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	for _, it := range items {
		kind := "f"
		if it.Kind == elektroid.ItemDir {
			kind = "d"
		}
		fmt.Printf("%s\t%d\t%s\n", kind, it.Size, it.Name)
	}
	return 0
}

func cmdMkdir(ctx context.Context, cfg elektroid.Config, args []string) int {
	return withFSOp(ctx, cfg, args, 1, func(b *elektroid.Backend, op elektroid.FSOperations, a []string) error {
		return op.Mkdir(ctx, b, a[0])
	})
}

func cmdRm(ctx context.Context, cfg elektroid.Config, args []string) int {
	return withFSOp(ctx, cfg, args, 1, func(b *elektroid.Backend, op elektroid.FSOperations, a []string) error {
		return op.Delete(ctx, b, a[0])
	})
}

func cmdMv(ctx context.Context, cfg elektroid.Config, args []string) int {
	return withFSOp(ctx, cfg, args, 2, func(b *elektroid.Backend, op elektroid.FSOperations, a []string) error {
		return op.Move(ctx, b, a[0], a[1])
	})
}

func cmdCp(ctx context.Context, cfg elektroid.Config, args []string) int {
	return withFSOp(ctx, cfg, args, 2, func(b *elektroid.Backend, op elektroid.FSOperations, a []string) error {
		return op.Copy(ctx, b, a[0], a[1])
	})
}

func withFSOp(ctx context.Context, cfg elektroid.Config, args []string, need int, fn func(*elektroid.Backend, elektroid.FSOperations, []string) error) int {
	if len(args) < need {
		fmt.Fprintln(os.Stderr, "missing arguments")
		return 2
	}
	b, err := openBackend(ctx, cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer b.Destroy()
	if len(b.FSOps()) == 0 {
		fmt.Fprintln(os.Stderr, "device exposes no filesystem")
		return 1
	}
	if err := fn(b, b.FSOps()[0], args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

func cmdUpload(ctx context.Context, cfg elektroid.Config, args []string) int {
	if len(args) < 2 {
		fmt.Fprintln(os.Stderr, "upload: need <local> <remote>")
		return 2
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	b, err := openBackend(ctx, cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer b.Destroy()
	if len(b.FSOps()) == 0 {
		fmt.Fprintln(os.Stderr, "device exposes no filesystem")
		return 1
	}
	progress := func(frac float64, status string) bool {
		fmt.Printf("\r%s %.0f%%", status, frac*100)
		return true
	}
	if err := b.FSOps()[0].Upload(ctx, b, data, args[1], progress); err != nil {
		fmt.Println()
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	fmt.Println()
	return 0
}

func cmdDownload(ctx context.Context, cfg elektroid.Config, args []string) int {
	if len(args) < 2 {
		fmt.Fprintln(os.Stderr, "download: need <remote> <local>")
		return 2
	}
	b, err := openBackend(ctx, cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer b.Destroy()
	if len(b.FSOps()) == 0 {
		fmt.Fprintln(os.Stderr, "device exposes no filesystem")
		return 1
	}
	progress := func(frac float64, status string) bool {
		fmt.Printf("\r%s %.0f%%", status, frac*100)
		return true
	}
	data, err := b.FSOps()[0].Download(ctx, b, args[0], progress)
	if err != nil {
		fmt.Println()
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	fmt.Println()
	if err := os.WriteFile(args[1], data, 0o644); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

func cmdStats(ctx context.Context, cfg elektroid.Config, args []string) int {
	storageKind := byte(elektroid.StoragePlusDrive)
	if len(args) > 0 && args[0] == "ram" {
		storageKind = byte(elektroid.StorageRAM)
	}
	b, err := openBackend(ctx, cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer b.Destroy()
	stats, err := elektroid.GetStorageStats(ctx, b, storageKind)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	fmt.Printf("free: %d  total: %d  used: %.1f%%\n", stats.BytesFree, stats.BytesTotal, stats.PercentUse)
	return 0
}

func cmdOSUpgrade(ctx context.Context, cfg elektroid.Config, args []string) int {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "os-upgrade: missing image path")
		return 2
	}
	image, err := os.ReadFile(args[0])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	b, err := openBackend(ctx, cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer b.Destroy()
	progress := func(frac float64, status string) bool {
		fmt.Printf("\r%s %.0f%%", status, frac*100)
		return true
	}
	if err := b.UpgradeOS(ctx, image, progress); err != nil {
		fmt.Println()
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	fmt.Println()
	return 0
}
