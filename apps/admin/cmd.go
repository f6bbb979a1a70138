package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"golang.org/x/term"

	"github.com/trezcool/ratiba/core"
	"github.com/trezcool/ratiba/core/school"
	"github.com/trezcool/ratiba/core/timetable"
)

var (
	isTerminalFunc = term.IsTerminal // mockable

	errHelp    = errors.New("help provided")
	errAborted = errors.New("aborted")
)

type commandLine struct {
	db           *sqlx.DB
	conf         *core.Config
	schoolSvc    *school.Service
	timetableSvc *timetable.Service
	validate     *validator.Validate
	translator   ut.Translator

	in   io.Reader
	inFd int
	out  io.Writer
}

func newCommandLine(
	db *sqlx.DB,
	conf *core.Config,
	schoolSvc *school.Service,
	timetableSvc *timetable.Service,
	validate *validator.Validate,
	translator ut.Translator,
) *commandLine {
	return &commandLine{
		db:           db,
		conf:         conf,
		schoolSvc:    schoolSvc,
		timetableSvc: timetableSvc,
		validate:     validate,
		translator:   translator,
		in:           os.Stdin,
		inFd:         int(os.Stdin.Fd()),
		out:          os.Stdout,
	}
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS] - run a goose migration command (up, down, status, redo, version...)")
	fmt.Fprintln(cli.out, "  import -file CATALOG.yaml - import branches, academic years, classes, subjects and teachers")
	fmt.Fprintln(cli.out, "  preview -template ID - show what generating a timetable template would do")
	fmt.Fprintln(cli.out, "  generate -template ID [-force] [-regenerate] [-yes] - generate the sessions of a template")
	fmt.Fprintln(cli.out, "  generate -all - generate the sessions of every active template")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	importCmd := flag.NewFlagSet("import", flag.ContinueOnError)
	importCmd.SetOutput(cli.out)
	importFile := importCmd.String("file", "", "Path of the YAML catalog to import.")

	previewCmd := flag.NewFlagSet("preview", flag.ContinueOnError)
	previewCmd.SetOutput(cli.out)
	previewTemplate := previewCmd.String("template", "", "ID of the timetable template.")

	generateCmd := flag.NewFlagSet("generate", flag.ContinueOnError)
	generateCmd.SetOutput(cli.out)
	generateTemplate := generateCmd.String("template", "", "ID of the timetable template.")
	generateAll := generateCmd.Bool("all", false, "Generate every active template (without forcing).")
	generateForce := generateCmd.Bool("force", false, "Create sessions on conflicting dates too.")
	generateRegenerate := generateCmd.Bool("regenerate", false, "Delete the sessions generated earlier first. Implies -force.")
	generateYes := generateCmd.Bool("yes", false, "Do not ask for confirmation.")

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])
	case "import":
		if err := importCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *importFile == "" {
			importCmd.Usage()
			return errHelp
		}
		return cli.importCatalog(*importFile)
	case "preview":
		if err := previewCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *previewTemplate == "" {
			previewCmd.Usage()
			return errHelp
		}
		return cli.preview(*previewTemplate)
	case "generate":
		if err := generateCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *generateAll {
			if *generateTemplate != "" || *generateForce || *generateRegenerate {
				generateCmd.Usage()
				return errHelp
			}
			return cli.generateAll()
		}
		if *generateTemplate == "" {
			generateCmd.Usage()
			return errHelp
		}
		opts := timetable.GenerateOptions{Force: *generateForce, Regenerate: *generateRegenerate}
		if opts.Regenerate && !*generateYes && isTerminalFunc(cli.inFd) {
			ok, err := cli.confirm("Sessions previously generated from this template will be deleted. Continue?")
			if err != nil {
				return err
			}
			if !ok {
				return errAborted
			}
		}
		return cli.generate(*generateTemplate, opts)
	default:
		cli.printUsage()
		return errHelp
	}
}

// confirm asks a yes/no question on the command line. Anything but y/yes is a no.
func (cli *commandLine) confirm(question string) (bool, error) {
	fmt.Fprintf(cli.out, "%s [y/N]: ", question)
	answer, err := bufio.NewReader(cli.in).ReadString('\n')
	if err != nil && err != io.EOF {
		return false, err
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes", nil
}
