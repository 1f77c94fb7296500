package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/alexisbeaulieu97/weaver/internal/blueprint"
	"github.com/alexisbeaulieu97/weaver/internal/compiler"
	"github.com/alexisbeaulieu97/weaver/internal/diagnostics"
	"github.com/alexisbeaulieu97/weaver/internal/emit"
	"github.com/alexisbeaulieu97/weaver/internal/language"
	"github.com/alexisbeaulieu97/weaver/internal/logging"
	"github.com/alexisbeaulieu97/weaver/internal/ports"
	"github.com/alexisbeaulieu97/weaver/internal/rustdoc"
)

type generateFlags struct {
	blueprintPath string
	docsDir       string
	outputPath    string
}

func newGenerateCmd(root *rootFlags) *cobra.Command {
	flags := &generateFlags{}

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Compile a blueprint into emitter hand-off records",
		RunE: func(cmd *cobra.Command, args []string) error {
			artifacts, err := compile(cmd, root, flags.blueprintPath, flags.docsDir)
			if err != nil || artifacts == nil {
				return err
			}
			return writeArtifacts(cmd, artifacts, flags.outputPath)
		},
	}

	cmd.Flags().StringVarP(&flags.blueprintPath, "blueprint", "b", "blueprint.yaml", "Path to the blueprint file")
	cmd.Flags().StringVarP(&flags.docsDir, "docs", "d", "docs", "Directory of hydrated rustdoc JSON records")
	cmd.Flags().StringVarP(&flags.outputPath, "output", "o", "-", "Output path for the hand-off records (- for stdout)")

	return cmd
}

func newCheckCmd(root *rootFlags) *cobra.Command {
	flags := &generateFlags{}

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Analyse a blueprint and report diagnostics without emitting",
		RunE: func(cmd *cobra.Command, args []string) error {
			artifacts, err := compile(cmd, root, flags.blueprintPath, flags.docsDir)
			if err != nil || artifacts == nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ok: %d routes, %d configs, %d singletons\n",
				len(artifacts.Pipelines), len(artifacts.Config.Fields), len(artifacts.State.Fields))
			return nil
		},
	}

	cmd.Flags().StringVarP(&flags.blueprintPath, "blueprint", "b", "blueprint.yaml", "Path to the blueprint file")
	cmd.Flags().StringVarP(&flags.docsDir, "docs", "d", "docs", "Directory of hydrated rustdoc JSON records")

	return cmd
}

func compile(cmd *cobra.Command, root *rootFlags, blueprintPath, docsDir string) (*emit.Artifacts, error) {
	level := "info"
	if root.verbose {
		level = "debug"
	}
	logger, err := logging.New(logging.Options{Level: level, Component: "cli"})
	if err != nil {
		return nil, err
	}
	ctx := ports.WithCorrelationID(cmd.Context(), ports.GenerateCorrelationID())

	bp, err := blueprint.ParseBlueprint(blueprintPath)
	if err != nil {
		return nil, err
	}
	docs, err := rustdoc.LoadDir(docsDir)
	if err != nil {
		return nil, err
	}

	artifacts, sink := compiler.New(logger).Compile(ctx, bp, docs)
	if sink.Len() > 0 {
		renderer := diagnostics.NewRenderer(
			cmd.ErrOrStderr(),
			diagnostics.IsTerminal(os.Stderr.Fd()),
		)
		if err := renderer.Render(sink.Diagnostics()); err != nil {
			return nil, err
		}
	}
	if artifacts == nil {
		return nil, fmt.Errorf("compilation failed with %d error(s)", sink.ErrorCount())
	}
	return artifacts, nil
}

// writeArtifacts serialises a compact JSON summary of the hand-off records.
func writeArtifacts(cmd *cobra.Command, artifacts *emit.Artifacts, path string) error {
	type stageSummary struct {
		Name   string   `json:"name"`
		Async  bool     `json:"async,omitempty"`
		Inputs []string `json:"inputs,omitempty"`
		Nodes  int      `json:"nodes"`
	}
	type pipelineSummary struct {
		Route  string         `json:"route"`
		Stages []stageSummary `json:"stages"`
	}
	type configSummary struct {
		Ident   string `json:"ident"`
		Type    string `json:"type"`
		Default bool   `json:"default_if_missing,omitempty"`
	}
	type summary struct {
		Routes        []pipelineSummary `json:"routes"`
		Configs       []configSummary   `json:"configs"`
		Singletons    []string          `json:"singletons"`
		ErrorVariants []string          `json:"error_variants,omitempty"`
	}

	out := summary{}
	for _, p := range artifacts.Pipelines {
		route := pipelineSummary{Route: p.Route}
		for _, stage := range p.Stages {
			s := stageSummary{Name: stage.Name, Async: stage.IsAsync, Nodes: stage.Graph.Graph.Len()}
			for _, input := range stage.InputTypes {
				s.Inputs = append(s.Inputs, language.Display(input))
			}
			route.Stages = append(route.Stages, s)
		}
		out.Routes = append(out.Routes, route)
	}
	for _, field := range artifacts.Config.Fields {
		out.Configs = append(out.Configs, configSummary{
			Ident:   field.Ident,
			Type:    language.Display(field.Type),
			Default: field.DefaultIfMissing,
		})
	}
	for _, field := range artifacts.State.Fields {
		out.Singletons = append(out.Singletons, fmt.Sprintf("%s: %s", field.Name, language.Display(field.Type)))
	}
	for _, variant := range artifacts.State.ErrorVariants {
		out.ErrorVariants = append(out.ErrorVariants, variant.Name)
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')

	if path == "-" || path == "" {
		_, err = cmd.OutOrStdout().Write(data)
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
