package main

import (
	"context"
	"fmt"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/trezcool/ratiba/core/school"
)

func (cli *commandLine) importCatalog(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "opening catalog")
	}
	defer f.Close()

	var catalog school.Catalog
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err = dec.Decode(&catalog); err != nil {
		return errors.Wrap(err, "decoding catalog")
	}
	if err = catalog.Validate(cli.validate, cli.translator); err != nil {
		return err
	}

	res, err := cli.schoolSvc.Import(context.Background(), catalog)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "Imported %d records: %d branches, %d academic years, %d classes, %d subjects, %d teachers\n",
		res.Count(), len(res.Branches), len(res.AcademicYears), len(res.Classes), len(res.Subjects), len(res.Teachers))
	return nil
}
