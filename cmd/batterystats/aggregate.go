// Copyright 2016 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/pieterhop/android-runner/aggregate"
)

func newAggregateCmd(g *globalFlags) *cobra.Command {
	agg := &cobra.Command{Use: "aggregate", Short: "Average the results of repeated runs"}

	agg.AddCommand(&cobra.Command{
		Use:   "subject <dir>",
		Short: "Write the subject average of the run files in dir to " + aggregate.AggregatedFile,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := newLogger(g.logLevel)
			if err != nil {
				return err
			}
			res, err := aggregate.New(log).WriteSubject(args[0])
			if res != nil {
				for _, s := range res.Skips {
					_, _ = fmt.Fprintf(cmd.OutOrStdout(), "skipped %s\n", s)
				}
			}
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "averaged %d runs into %d fields\n", res.Runs, res.Row.Len())
			return nil
		},
	})

	var protoOut string
	final := &cobra.Command{
		Use:   "final <root> <out.csv>",
		Short: "Write one row per device and subject found under root",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := newLogger(g.logLevel)
			if err != nil {
				return err
			}
			rep, err := aggregate.New(log).WriteFinal(args[0], args[1])
			if err != nil {
				return err
			}
			for _, s := range rep.Skips {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "skipped %s\n", s)
			}
			for _, d := range rep.NoData {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "no data %s\n", d)
			}
			if protoOut != "" {
				f, err := os.Create(protoOut)
				if err != nil {
					return err
				}
				if err := aggregate.WriteProto(f, rep.Rows); err != nil {
					f.Close()
					return err
				}
				if err := f.Close(); err != nil {
					return errors.Wrap(err, "cannot write proto report")
				}
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "wrote %d rows to %s\n", len(rep.Rows), args[1])
			return nil
		},
	}
	final.Flags().StringVar(&protoOut, "proto", "", "also write the report as a protobuf Struct")
	agg.AddCommand(final)
	return agg
}
