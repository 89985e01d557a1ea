// Command seed bulk-loads OMOP standard-vocabulary CSV files into the
// Vocabulary Service and, optionally, creates a demo mapping job so a
// fresh deployment has something to approve and ingest against.
package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/neurondb/NeuronIP/api/internal/catalog"
	"github.com/neurondb/NeuronIP/api/internal/config"
	"github.com/neurondb/NeuronIP/api/internal/db"
	"github.com/neurondb/NeuronIP/api/internal/model"
	"github.com/neurondb/NeuronIP/api/internal/schema"
	"github.com/neurondb/NeuronIP/api/internal/vocabulary"
)

var (
	vocabDir  = flag.String("vocab-dir", "", "Directory of OMOP vocabulary CSV files to load (CONCEPT.csv, etc)")
	demoJob   = flag.Bool("demo-job", false, "Create a demo DRAFT mapping job for a HL7v2 ADT feed")
	sampleCSV = flag.String("sample-csv", "", "Optional CSV file to infer the demo job's source schema from, instead of the built-in HL7v2 ADT field list")
)

func main() {
	flag.Parse()

	if *vocabDir == "" && !*demoJob {
		fmt.Fprintln(os.Stderr, "nothing to do: pass -vocab-dir and/or -demo-job")
		flag.Usage()
		os.Exit(1)
	}

	cfg := config.Load()
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	if *vocabDir != "" {
		vocab := vocabulary.New(pool.Pool)
		n, err := vocab.SeedFromDirectory(ctx, *vocabDir)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to seed vocabulary: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("loaded %d concepts from %s\n", n, *vocabDir)
	}

	if *demoJob {
		cat := catalog.New(pool.Pool)
		job := demoMappingJob()
		if *sampleCSV != "" {
			inferred, err := inferSourceSchema(*sampleCSV)
			if err != nil {
				fmt.Fprintf(os.Stderr, "failed to infer schema from %s: %v\n", *sampleCSV, err)
				os.Exit(1)
			}
			job.SourceSchema = inferred
		}
		if err := cat.CreateMappingJob(ctx, job); err != nil {
			fmt.Fprintf(os.Stderr, "failed to create demo mapping job: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("created demo mapping job %s (status %s)\n", job.JobID, job.Status)
	}
}

/* inferSourceSchema runs the Schema Inferencer over a sample CSV file so an
   operator can seed a demo job against their own feed shape instead of the
   built-in HL7v2 ADT field list. */
func inferSourceSchema(path string) (model.Schema, error) {
	f, err := os.Open(path)
	if err != nil {
		return model.Schema{}, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return model.Schema{}, fmt.Errorf("read header: %w", err)
	}

	var rows []map[string]string
	for {
		record, err := r.Read()
		if err != nil {
			break
		}
		row := make(map[string]string, len(header))
		for i, col := range header {
			if i < len(record) {
				row[col] = record[i]
			}
		}
		rows = append(rows, row)
	}

	result := schema.New().Infer(header, rows)
	return result.Schema, nil
}

/* demoMappingJob builds a DRAFT job mapping a flat HL7v2-ADT-shaped
   source record onto a FHIR Patient resource, giving a fresh deployment
   a job to run through Analyze -> approve mappings -> Start. */
func demoMappingJob() *model.MappingJob {
	source := model.Schema{
		Fields: []model.SchemaField{
			{Path: "PID-3", Type: model.TypeString},
			{Path: "PID-5.1", Type: model.TypeString},
			{Path: "PID-5.2", Type: model.TypeString},
			{Path: "PID-7", Type: model.TypeDate},
			{Path: "PID-8", Type: model.TypeString},
		},
	}
	target := model.Schema{
		Fields: []model.SchemaField{
			{Path: "identifier", Type: model.TypeString},
			{Path: "name.family", Type: model.TypeString},
			{Path: "name.given", Type: model.TypeString},
			{Path: "birthDate", Type: model.TypeDate},
			{Path: "gender", Type: model.TypeString},
		},
	}

	return &model.MappingJob{
		JobID:          "demo-" + uuid.NewString(),
		UserID:         "seed",
		Name:           "Demo HL7v2 ADT -> FHIR Patient",
		SourceSchema:   source,
		TargetSchema:   target,
		TargetResource: "Patient",
		Status:         model.MappingDraft,
		CreatedAt:      time.Now(),
		UpdatedAt:      time.Now(),
	}
}
