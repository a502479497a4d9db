package main

import (
	"log"
	"os"

	"github.com/PatchLens/go-debug-lens/lens"
	"github.com/PatchLens/go-debug-lens/lens/cmd"
)

func main() {
	log.SetFlags(log.LstdFlags | log.LUTC)

	flags, err := cmd.ParseFlags([]cmd.CustomFlag{
		{Name: "json", DefaultValue: "lensreport.json", Usage: "File to output the capture summary", Type: "string"},
		{Name: "chart", DefaultValue: "lensreport.png", Usage: "File to output the overview chart image", Type: "string"},
	})
	if err != nil {
		log.Fatalf("%s%v", lens.ErrorLogPrefix, err)
	}
	captureFile := flags.Config.CaptureFile
	if captureFile == "" {
		log.Fatalf("%sUsage: -capture events.jsonl [-json lensreport.json] [-chart lensreport.png]", lens.ErrorLogPrefix)
	}

	f, err := os.Open(captureFile)
	if err != nil {
		log.Fatalf("%sFailed to open capture: %v", lens.ErrorLogPrefix, err)
	}
	metrics, err := lens.SummarizeCapture(f)
	_ = f.Close()
	if err != nil {
		log.Fatalf("%sFailed to summarize capture: %v", lens.ErrorLogPrefix, err)
	}

	chartFile := flags.Custom["chart"]
	eg := lens.ErrGroupLimitCPU()
	eg.Go(func() error {
		return metrics.WriteJSON(flags.Custom["json"])
	})
	if chartFile != "" {
		eg.Go(func() error {
			return lens.WriteReportChart(chartFile, metrics)
		})
	}
	if err := eg.Wait(); err != nil {
		log.Fatalf("%s%v", lens.ErrorLogPrefix, err)
	} else if chartFile != "" {
		log.Println("Report chart wrote: " + chartFile)
	}
	log.Printf("Summarized %d events from %s", metrics.EventCount, captureFile)
}
