// SPDX-License-Identifier: LGPL-3.0-or-later

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/pterm/pterm"

	"sbatchman"
	"sbatchman/logging"
	"sbatchman/models"
	"sbatchman/sbmerr"
)

const version = "0.1.0"

func main() {
	if len(os.Args) < 2 {
		showUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "run":
		runCmd := flag.NewFlagSet("run", flag.ExitOnError)
		file := runCmd.String("file", "", "Job expansion YAML file")
		runCmd.Parse(os.Args[2:])
		handleRun(*file)

	case "parse":
		parseCmd := flag.NewFlagSet("parse", flag.ExitOnError)
		file := parseCmd.String("file", "", "Job expansion YAML file")
		parseCmd.Parse(os.Args[2:])
		handleParse(*file)

	case "query", "list":
		queryCmd := flag.NewFlagSet("query", flag.ExitOnError)
		status := queryCmd.String("status", "", "Filter by status")
		cluster := queryCmd.String("cluster", "", "Filter by cluster name")
		name := queryCmd.String("name", "", "Filter by job name substring")
		jsonOut := queryCmd.Bool("json", false, "Output in JSON format")
		queryCmd.Parse(os.Args[2:])
		handleQuery(*status, *cluster, *name, *jsonOut)

	case "cancel":
		cancelCmd := flag.NewFlagSet("cancel", flag.ExitOnError)
		id := cancelCmd.Int64("id", 0, "Job ID to cancel")
		cancelCmd.Parse(os.Args[2:])
		handleCancel(*id)

	case "export":
		exportCmd := flag.NewFlagSet("export", flag.ExitOnError)
		out := exportCmd.String("out", "bundle.tar.gz", "Output bundle path")
		status := exportCmd.String("status", "", "Filter by status")
		cluster := exportCmd.String("cluster", "", "Filter by cluster name")
		exportCmd.Parse(os.Args[2:])
		handleExport(*out, *status, *cluster)

	case "import":
		importCmd := flag.NewFlagSet("import", flag.ExitOnError)
		bundlePath := importCmd.String("bundle", "", "Bundle path to import")
		importCmd.Parse(os.Args[2:])
		handleImport(*bundlePath)

	case "cluster-config":
		clusterCmd := flag.NewFlagSet("cluster-config", flag.ExitOnError)
		file := clusterCmd.String("file", "", "Cluster config YAML file")
		clusterCmd.Parse(os.Args[2:])
		handleClusterConfig(*file)

	case "cluster-name":
		nameCmd := flag.NewFlagSet("cluster-name", flag.ExitOnError)
		set := nameCmd.String("set", "", "Set this host's cluster_name")
		nameCmd.Parse(os.Args[2:])
		handleClusterName(*set)

	case "migrate-db":
		handleMigrateDB()

	case "recover":
		handleRecover()

	case "daemon":
		handleDaemon()

	case "__set-status":
		handleSetStatus(os.Args[2:])

	case "version":
		fmt.Printf("sbatchman version %s\n", version)

	case "help", "-h", "--help":
		showUsage()

	default:
		pterm.Error.Printfln("Unknown command: %s", os.Args[1])
		showUsage()
		os.Exit(1)
	}
}

func openApp() *sbatchman.App {
	log := logging.New("info")
	app, err := sbatchman.Open(log)
	if err != nil {
		fail(err)
	}
	return app
}

func fail(err error) {
	pterm.Error.Println(err.Error())
	os.Exit(sbmerr.KindOf(err).ExitCode())
}

func handleRun(file string) {
	if file == "" {
		pterm.Error.Println("run requires -file")
		os.Exit(1)
	}
	app := openApp()
	defer app.Close()

	ids, err := app.RunJobsFromFile(file)
	if err != nil {
		fail(err)
	}
	pterm.Success.Printfln("enqueued %d job(s)", len(ids))
	for _, id := range ids {
		pterm.Println(" ", id)
	}
}

func handleParse(file string) {
	if file == "" {
		pterm.Error.Println("parse requires -file")
		os.Exit(1)
	}
	app := openApp()
	defer app.Close()

	jobs, err := app.ParseJobsFromFile(file)
	if err != nil {
		fail(err)
	}
	pterm.Success.Printfln("%d job(s) would be enqueued", len(jobs))
	for _, j := range jobs {
		pterm.Println(" ", j.JobName, "->", j.ClusterName)
	}
}

func handleQuery(status, cluster, name string, jsonOut bool) {
	app := openApp()
	defer app.Close()

	filter := models.Filter{ClusterName: cluster, NamePattern: name}
	if status != "" {
		s := models.JobStatus(status)
		filter.Status = &s
	}

	views, err := app.GetJobs(filter)
	if err != nil {
		fail(err)
	}

	if jsonOut {
		printJobsJSON(views)
		return
	}
	printJobsTable(views)
}

func printJobsTable(views []models.JobView) {
	rows := [][]string{{"ID", "NAME", "CLUSTER", "STATUS", "SUBMITTED"}}
	for _, v := range views {
		rows = append(rows, []string{
			strconv.FormatInt(v.ID, 10),
			v.JobName,
			v.ClusterName,
			string(v.Status),
			v.SubmitTime.Format("2006-01-02 15:04:05"),
		})
	}
	pterm.DefaultTable.WithHasHeader().WithData(rows).Render()
}

func printJobsJSON(views []models.JobView) {
	data, err := json.MarshalIndent(views, "", "  ")
	if err != nil {
		fail(err)
	}
	fmt.Println(string(data))
}

func handleCancel(id int64) {
	if id == 0 {
		pterm.Error.Println("cancel requires -id")
		os.Exit(1)
	}
	app := openApp()
	defer app.Close()

	selfExe, _ := os.Executable()
	if err := app.CancelJob(context.Background(), selfExe, id); err != nil {
		fail(err)
	}
	pterm.Success.Printfln("job %d cancelled", id)
}

func handleExport(out, status, cluster string) {
	app := openApp()
	defer app.Close()

	filter := models.Filter{ClusterName: cluster}
	if status != "" {
		s := models.JobStatus(status)
		filter.Status = &s
	}

	n, err := app.ExportJobs(filter, out)
	if err != nil {
		fail(err)
	}
	pterm.Success.Printfln("exported %d job(s) to %s", n, out)
}

func handleImport(bundlePath string) {
	if bundlePath == "" {
		pterm.Error.Println("import requires -bundle")
		os.Exit(1)
	}
	app := openApp()
	defer app.Close()

	result, err := app.ImportJobs(bundlePath)
	if err != nil {
		fail(err)
	}
	pterm.Success.Printfln("imported %d job(s), %d coerced to failed (non-terminal on export)", result.JobsImported, len(result.Coerced))
}

func handleClusterConfig(file string) {
	if file == "" {
		pterm.Error.Println("cluster-config requires -file")
		os.Exit(1)
	}
	app := openApp()
	defer app.Close()

	if err := app.ImportClusterConfigsFromFile(file); err != nil {
		fail(err)
	}
	pterm.Success.Println("cluster configuration imported")
}

func handleClusterName(set string) {
	app := openApp()
	defer app.Close()

	if set != "" {
		if err := app.SetClusterName(set); err != nil {
			fail(err)
		}
		pterm.Success.Printfln("cluster_name set to %s", set)
		return
	}
	fmt.Println(app.GetClusterName())
}

func handleMigrateDB() {
	app := openApp()
	defer app.Close()

	if err := app.MigrateDB(); err != nil {
		fail(err)
	}
	pterm.Success.Println("schema migrated")
}

func handleRecover() {
	app := openApp()
	defer app.Close()

	n, err := app.RecoverFromMetadata()
	if err != nil {
		fail(err)
	}
	pterm.Success.Printfln("rebuilt %d job(s) from metadata.txt", n)
}

func handleDaemon() {
	app := openApp()
	defer app.Close()

	selfExe, err := os.Executable()
	if err != nil {
		fail(err)
	}

	engine := app.NewLifecycleEngine(selfExe)
	engine.Recover(context.Background())
	engine.Start()
	defer engine.Stop()

	pterm.Info.Println("lifecycle engine running, press Ctrl+C to stop")
	select {}
}

func handleSetStatus(args []string) {
	if len(args) < 2 {
		os.Exit(1)
	}
	app := openApp()
	defer app.Close()

	jobID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		os.Exit(1)
	}
	status := models.JobStatus(args[1])
	// An optional third argument is the run script's exit code; status
	// already says completed or failed, so the code is not stored.

	if err := app.SetStatus(jobID, status, nil); err != nil {
		os.Exit(1)
	}
}

func showUsage() {
	pterm.DefaultHeader.WithFullWidth().Println("sbatchman")
	pterm.Println("HPC batch job submission and tracking across SLURM, PBS, and local execution.")
	pterm.Println()
	pterm.Println("Usage:")
	pterm.Println("  sbatchman run -file jobs.yaml")
	pterm.Println("  sbatchman parse -file jobs.yaml")
	pterm.Println("  sbatchman query [-status S] [-cluster C] [-name N] [-json]")
	pterm.Println("  sbatchman cancel -id ID")
	pterm.Println("  sbatchman export -out bundle.tar.gz [-status S] [-cluster C]")
	pterm.Println("  sbatchman import -bundle bundle.tar.gz")
	pterm.Println("  sbatchman cluster-config -file clusters.yaml")
	pterm.Println("  sbatchman cluster-name [-set NAME]")
	pterm.Println("  sbatchman migrate-db")
	pterm.Println("  sbatchman recover")
	pterm.Println("  sbatchman daemon")
}
