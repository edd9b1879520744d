package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/ALEYI17/InfraSight_mon/internal/dump"
	"github.com/ALEYI17/InfraSight_mon/pkg/logutil"
	"go.uber.org/zap"
)

func main() {
	infoLen := flag.Int("info-len", 0, "payload size of info records in flat files")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [-info-len n] file...\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	logutil.InitLogger()
	logger := logutil.GetLogger()
	defer logger.Sync()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	failed := false
	for _, path := range flag.Args() {
		f, err := os.Open(path)
		if err != nil {
			logger.Error("Cannot open", zap.String("path", path), zap.Error(err))
			failed = true
			continue
		}
		n, err := dump.Dump(f, os.Stdout, *infoLen)
		f.Close()
		if err != nil {
			logger.Error("Dump failed", zap.String("path", path), zap.Int("events", n), zap.Error(err))
			failed = true
			continue
		}
		logger.Info("Dumped", zap.String("path", path), zap.Int("events", n))
	}
	if failed {
		os.Exit(1)
	}
}
