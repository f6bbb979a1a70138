package main

import (
	"context"
	"fmt"

	"github.com/trezcool/ratiba/core/timetable"
)

func (cli *commandLine) generate(templateID string, opts timetable.GenerateOptions) error {
	gen, err := cli.timetableSvc.Generate(context.Background(), templateID, opts)
	if err != nil {
		return err
	}
	cli.printGeneration(gen)
	return nil
}

func (cli *commandLine) generateAll() error {
	gens, err := cli.timetableSvc.GenerateActive(context.Background())
	if err != nil {
		return err
	}
	for _, gen := range gens {
		cli.printGeneration(gen)
	}
	fmt.Fprintf(cli.out, "%d templates generated\n", len(gens))
	return nil
}

func (cli *commandLine) printGeneration(gen timetable.Generation) {
	fmt.Fprintf(cli.out, "%s: %d created, %d skipped, %d conflicting, %d forced, %d removed (%d dates)\n",
		gen.TemplateID, gen.Created, gen.Skipped, gen.Conflicting, gen.Forced, gen.Removed, gen.TotalDates)
}
