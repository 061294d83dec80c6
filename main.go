// blockcopier streams the full byte range of a raw volume, snapshot device
// or disk image onto a destination disk or volume, keeping several
// block-sized I/Os in flight at once.
//
// Build:
//
//	go build -o blockcopier .
package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/logesh11exe/BlockCopier/blockcopy"
	"github.com/logesh11exe/BlockCopier/logutil"
	"github.com/logesh11exe/BlockCopier/retrocopy"
)

func human(b int64) string {
	switch {
	case b >= 1024*1024*1024:
		return fmt.Sprintf("%dG", b/(1024*1024*1024))
	case b >= 1024*1024:
		return fmt.Sprintf("%dM", b/(1024*1024))
	case b >= 1024:
		return fmt.Sprintf("%dK", b/1024)
	}
	return fmt.Sprintf("%dB", b)
}

// confirmProceed prints a prompt and accepts 1 (proceed) or 0 (exit),
// matching the classic interactive contract.
func confirmProceed(prompt string) bool {
	fmt.Println(prompt)
	fmt.Println("Enter 1 to proceed and 0 to exit")
	sc := bufio.NewScanner(os.Stdin)
	if !sc.Scan() {
		return false
	}
	return strings.TrimSpace(sc.Text()) == "1"
}

func newCopyCommand() *cobra.Command {
	var (
		useDefault bool
		force      bool
		withUI     bool
		logFile    string
		logLevel   string
		quiet      bool
	)

	cmd := &cobra.Command{
		Use:   "copy <sourcePath> <destinationPath> [<threads> <blockSizeMB>]",
		Short: "Copy a device or image onto a destination disk block by block",
		Long: "Copy the whole byte range of the source device onto the destination.\n" +
			"Either pass --usedefault or give two positional values: threads (1-64)\n" +
			"and the block size in MB.\n\n" +
			"Example (defaults):  blockcopier copy \\\\?\\GLOBALROOT\\Device\\HarddiskVolumeShadowCopy3 \\\\.\\PhysicalDrive2 --usedefault\n" +
			"Example (custom):    blockcopier copy /dev/sdb /dev/sdc 10 4",
		Args: cobra.RangeArgs(2, 4),
		RunE: func(_ *cobra.Command, args []string) error {
			srcPath, dstPath := args[0], args[1]

			threads := blockcopy.DefaultThreads
			blockMB := blockcopy.DefaultBlockSizeMB
			switch {
			case useDefault && len(args) == 2:
				fmt.Printf("Using default parameters: Threads = %d, Block Size = %d MB.\n\n", threads, blockMB)
			case !useDefault && len(args) == 4:
				var err error
				threads, err = strconv.Atoi(args[2])
				if err != nil {
					return fmt.Errorf("invalid thread count %q", args[2])
				}
				blockMB, err = strconv.Atoi(args[3])
				if err != nil {
					return fmt.Errorf("invalid block size %q", args[3])
				}
				if threads < 1 || threads > blockcopy.MaxThreads {
					return fmt.Errorf("thread count %d not in [1, %d]", threads, blockcopy.MaxThreads)
				}
				if blockMB <= 0 {
					return fmt.Errorf("block size %d MB must be positive", blockMB)
				}
				fmt.Printf("Using custom parameters: Threads = %d, Block Size = %d MB.\n\n", threads, blockMB)
			default:
				return fmt.Errorf("pass either --usedefault or both <threads> and <blockSizeMB>")
			}

			if !force {
				warn := "Make sure the source path holds a valid snapshot or quiescent device.\n" +
					"[Critical] The destination will be overwritten in place. Point this at an empty drive."
				if !confirmProceed(warn) {
					return nil
				}
				fmt.Println()
			}

			level := logutil.LevelInfo
			if logLevel != "" {
				var err error
				level, err = logutil.ParseLevel(logLevel)
				if err != nil {
					return err
				}
			}
			log := logutil.New(level, !quiet && !withUI)
			defer log.Close()
			if logFile != "" {
				if err := log.EnableFile(logFile, true); err != nil {
					return err
				}
			}

			src, err := openSourceDevice(srcPath)
			if err != nil {
				return err
			}
			defer src.Close()
			dst, release, err := openDestDevice(dstPath)
			if err != nil {
				return err
			}
			defer release()
			defer dst.Close()

			opts := blockcopy.Options{
				Threads:   threads,
				BlockSize: int64(blockMB) * 1024 * 1024,
				Disk:      newDiskInfo(),
				Log:       log,
			}
			if force {
				opts.ConfirmSectorFallback = func(s int32) bool {
					log.Warningf("destination sector size unknown; assuming %d bytes (--force)", s)
					return true
				}
			} else {
				opts.ConfirmSectorFallback = func(s int32) bool {
					return confirmProceed(fmt.Sprintf(
						"Destination sector size query failed; assume %d bytes? This may corrupt the copy if wrong.", s))
				}
			}

			if withUI {
				return runWithUI(src, dst, srcPath, dstPath, opts)
			}

			// Plain mode: progress lines every few blocks, like the logs of
			// a long dd run.
			var lastRead, lastWritten int64
			opts.OnProgress = func(p blockcopy.Progress) {
				step := 4 * opts.BlockSize
				if p.BytesRead < lastRead+step && p.BytesWritten < lastWritten+step &&
					p.BytesWritten < p.SourceLength {
					return
				}
				lastRead, lastWritten = p.BytesRead, p.BytesWritten
				log.Infof("progress: read %s / %s (%.2f%%) | written %s (%.2f%%) | pending %d",
					human(p.BytesRead), human(p.SourceLength),
					pct(p.BytesRead, p.SourceLength),
					human(p.BytesWritten), p.Percent(), p.Pending)
			}
			c := blockcopy.New(opts)
			if err := c.Initialize(src, dst, srcPath, dstPath); err != nil {
				return err
			}
			return c.Run()
		},
	}

	cmd.Flags().BoolVar(&useDefault, "usedefault", false, "use built-in thread count and block size")
	cmd.Flags().BoolVar(&force, "force", false, "skip interactive confirmations")
	cmd.Flags().BoolVar(&withUI, "ui", false, "full-screen progress view")
	cmd.Flags().StringVar(&logFile, "log-file", "", "append log lines to this file")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "debug|info|warning|error|critical|none")
	cmd.Flags().BoolVar(&quiet, "quiet", false, "suppress console logging")
	return cmd
}

func pct(part, whole int64) float64 {
	if whole <= 0 {
		return 100
	}
	return float64(part) * 100 / float64(whole)
}

// runWithUI drives the copy under the retro full-screen view. Leaving the
// view (q / Ctrl-C) only stops the display; the copy keeps running.
func runWithUI(src, dst *os.File, srcPath, dstPath string, opts blockcopy.Options) error {
	ui, err := retrocopy.NewUI()
	if err != nil {
		return fmt.Errorf("ui init: %w", err)
	}
	defer ui.Close()

	var c *blockcopy.Copier
	startTime := time.Now()
	draw := func(p blockcopy.Progress) {
		if ui.IsStopped() {
			return
		}
		w, h := ui.Size()
		mapRows := h - 12
		if mapRows < 1 {
			mapRows = 1
		}
		ui.SetBlockMap(retrocopy.BlockMap(p.BytesWritten, p.BytesRead, p.SourceLength, c.BlockSize(), w, mapRows))

		elapsed := time.Since(startTime).Truncate(time.Second)
		rate := float64(0)
		if s := time.Since(startTime).Seconds(); s > 0 {
			rate = float64(p.BytesWritten) / s
		}
		eta := "—"
		if rate > 0 && p.SourceLength > p.BytesWritten {
			d := time.Duration(float64(p.SourceLength-p.BytesWritten) / rate * float64(time.Second))
			eta = d.Truncate(time.Second).String()
		}
		ui.SetStatusLines([]string{
			fmt.Sprintf("Read:    %s / %s (%.2f%%)", human(p.BytesRead), human(p.SourceLength), pct(p.BytesRead, p.SourceLength)),
			fmt.Sprintf("Written: %s (%.2f%%)   Pending IOs: %d", human(p.BytesWritten), p.Percent(), p.Pending),
			fmt.Sprintf("Elapsed: %s   Rate: %s/s   ETA: %s", elapsed, human(int64(rate)), eta),
		})
		ui.LayoutAndDraw()
	}
	opts.OnProgress = draw

	c = blockcopy.New(opts)
	if err := c.Initialize(src, dst, srcPath, dstPath); err != nil {
		return err
	}

	ui.SetTitle(fmt.Sprintf("BLOCK COPY  %s → %s", srcPath, dstPath))
	ui.SetSummaryLines([]string{
		fmt.Sprintf("Source: %s   Sector: %dB   Block: %s   Workers: %d",
			human(c.SourceLength()), c.SectorSize(), human(c.BlockSize()), opts.Threads),
	})
	ui.SetLegend([]string{
		"Legend:  █ written   ▒ read   ░ pending | Q leaves the view (copy continues)",
	})
	ui.SetPhaseDone(retrocopy.PhasePreflight)
	ui.LayoutAndDraw()

	err = c.Run()
	ui.SetPhaseDone(retrocopy.PhaseCopy)
	ui.SetPhaseDone(retrocopy.PhaseFlush)
	draw(c.Progress())
	ui.Close()
	return err
}

func newDeviceCommand() *cobra.Command {
	deviceCmd := &cobra.Command{
		Use:   "device",
		Short: "Device related utilities (safe, read-only)",
	}

	var listAll bool
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List candidate whole-disk devices (read-only)",
		RunE: func(_ *cobra.Command, _ []string) error {
			devs, err := listBlockDevices()
			if err != nil {
				return err
			}
			fmt.Println("Read-only listing; nothing is written.")
			fmt.Println()
			printRow := func(d blockDevice) {
				size := "-"
				if d.SizeBytes > 0 {
					size = human(d.SizeBytes)
				}
				fmt.Printf("  %-24s %8s  %s\n", d.Path, size, d.Detail)
			}
			fmt.Println("Whole disks (usable as source or destination):")
			whole := 0
			for _, d := range devs {
				if d.WholeDisk {
					printRow(d)
					whole++
				}
			}
			if whole == 0 {
				fmt.Println("  <none detected>")
			}
			if listAll && whole < len(devs) {
				fmt.Println()
				fmt.Println("Partitions and other block devices:")
				for _, d := range devs {
					if !d.WholeDisk {
						printRow(d)
					}
				}
			}
			return nil
		},
	}
	listCmd.Flags().BoolVar(&listAll, "all", false, "include partitions and other non-whole devices")
	deviceCmd.AddCommand(listCmd)

	var infoPath string
	infoCmd := &cobra.Command{
		Use:   "info",
		Short: "Show size and sector size of a device or image (read-only)",
		RunE: func(_ *cobra.Command, _ []string) error {
			f, err := openSourceDevice(infoPath)
			if err != nil {
				return err
			}
			defer f.Close()

			di := newDiskInfo()
			size, err := di.SourceLength(f)
			if err != nil {
				return err
			}
			fmt.Printf("Path:        %s\n", infoPath)
			fmt.Printf("Size:        %s (%d bytes)\n", human(size), size)
			if ssz, err := di.SectorSize(f, infoPath); err == nil && ssz > 0 {
				fmt.Printf("Sector size: %d bytes\n", ssz)
			} else {
				fmt.Printf("Sector size: unknown\n")
			}
			return nil
		},
	}
	infoCmd.Flags().StringVar(&infoPath, "path", "", "device path (e.g. /dev/sdb, \\\\.\\PhysicalDrive2) or image file")
	_ = infoCmd.MarkFlagRequired("path")
	deviceCmd.AddCommand(infoCmd)

	return deviceCmd
}

func main() {
	root := &cobra.Command{
		Use:           "blockcopier",
		Short:         "Block-level bulk copy for raw volumes and disks",
		Long:          "Stream the entire byte range of a source device to a destination device\nwith many I/O operations outstanding concurrently.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newCopyCommand())
	root.AddCommand(newDeviceCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
