// Command riscvum is a user-mode emulator for statically linked 64-bit
// RISC-V System-V ELF executables. It loads the target binary, maps its
// sections into a guest address space, and interprets its instruction
// stream until the guest exits via ecall.
package main

import (
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/amyip/riscvum/internal/cpu"
	"github.com/amyip/riscvum/internal/elfload"
	"github.com/amyip/riscvum/internal/memory"
	"github.com/fatih/color"
	"github.com/urfave/cli/v2"
	"golang.org/x/sys/unix"
)

const aboutMsg = `riscvum: user-mode RISC-V emulator

Interprets statically linked RV64I System-V ELF executables on a
synthetic register file until the guest exits via ecall.`

// hostWriter routes the guest's write(2) ECALL to a real host syscall, so
// arbitrary guest file descriptors (not just stdout/stderr) are honoured.
type hostWriter struct{}

func (hostWriter) Write(fd int, p []byte) (int, error) {
	return unix.Write(fd, p)
}

func main() {
	log.SetFlags(0)
	app := &cli.App{
		Name:                 "riscvum",
		Usage:                "run a statically linked RISC-V64 ELF executable",
		UsageText:            "riscvum [--about] [--verbose] <filename>",
		HideHelpCommand:      true,
		EnableBashCompletion: false,
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "about", Aliases: []string{"a"}, Usage: "display program information and exit"},
			&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}, Usage: "trace every retired instruction to stderr"},
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		fatal(err)
	}
}

func run(ctx *cli.Context) error {
	if ctx.Bool("about") {
		fmt.Println(aboutMsg)
		return nil
	}
	if ctx.NArg() < 1 {
		fatal(errors.New("No executable specified"))
	}
	filename := ctx.Args().Get(0)

	fp, err := os.Open(filename)
	if err != nil {
		if os.IsNotExist(err) {
			fatal(errors.New("No such file or directory"))
		}
		fatal(err)
	}
	defer fp.Close()

	mem := memory.NewMap()
	img, err := elfload.Load(fp, mem)
	if err != nil {
		fatal(err)
	}

	c := cpu.New(mem, img.EntryPC, hostWriter{})
	if ctx.Bool("verbose") {
		c.Trace = func(pc uint64, isn uint32) {
			label := symbolLabel(img.Symbols, pc)
			if label == "" {
				log.Printf("riscvum: pc=0x%08x isn=0x%08x %s", pc, isn, c)
				return
			}
			log.Printf("riscvum: pc=0x%08x (%s) isn=0x%08x %s", pc, label, isn, c)
		}
	}

	err = c.Run()
	var exit *cpu.ErrExit
	if errors.As(err, &exit) {
		os.Exit(int(exit.Status))
	}
	fatal(err)
	return nil // unreachable, fatal always exits
}

// symbolLabel returns "<name>+offset" for the symbol with the highest
// address not exceeding pc, or "" if no symbol covers it. Used only by
// the --verbose trace, the way a disassembler annotates addresses.
func symbolLabel(symbols map[string]uint64, pc uint64) string {
	var name string
	var base uint64
	found := false
	for n, addr := range symbols {
		if addr > pc {
			continue
		}
		if !found || addr > base {
			name, base, found = n, addr, true
		}
	}
	if !found {
		return ""
	}
	if off := pc - base; off != 0 {
		return fmt.Sprintf("%s+0x%x", name, off)
	}
	return name
}

// fatal prints a coloured error line and exits 1, mirroring the
// original emulator's terminal_error helper.
func fatal(err error) {
	prefix := color.New(color.FgRed, color.Bold).Sprint("error:")
	fmt.Fprintf(os.Stderr, "%s %s\n", prefix, err.Error())
	os.Exit(1)
}
