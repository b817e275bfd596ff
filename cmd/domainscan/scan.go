package main

import (
	"bufio"
	"context"
	"os"
	"runtime"
	"strings"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/spf13/cobra"

	"github.com/GlobalCyberAlliance/domainscan/pkg/advisor"
	"github.com/GlobalCyberAlliance/domainscan/pkg/cache"
	"github.com/GlobalCyberAlliance/domainscan/pkg/dispatcher"
	"github.com/GlobalCyberAlliance/domainscan/pkg/executor"
	"github.com/GlobalCyberAlliance/domainscan/pkg/scanner"
	"github.com/GlobalCyberAlliance/domainscan/pkg/scanners"
)

func init() {
	cmd.AddCommand(cmdScan)

	cmdScan.Flags().StringVar(&domainsFile, "domains", "", "Path to a newline-delimited file of domains to scan; defaults to stdin")
	cmdScan.Flags().StringSliceVarP(&scannerNames, "scanners", "s", nil, "Comma-separated scanners to run (dns, tlshardening, htmla11y); defaults to the configured default scanners")
	cmdScan.Flags().StringVar(&resultsDir, "resultsDir", "results", "Directory the run's per-scanner CSV tables and meta.json are written to")
	cmdScan.Flags().StringVar(&cacheDir, "cacheDir", "cache", "Directory the on-disk result cache is rooted at")
	cmdScan.Flags().BoolVar(&cacheEnabled, "cache", true, "Enable the on-disk result cache")
	cmdScan.Flags().BoolVar(&metaEnabled, "meta", false, "Include per-domain diagnostic columns in each result table")
	cmdScan.Flags().BoolVar(&sortOutput, "sort", false, "Sort each result table by domain before writing it")
	cmdScan.Flags().StringVar(&suffix, "suffix", "", "Only scan domains ending in this suffix")
	cmdScan.Flags().BoolVar(&advise, "advise", false, "Attach posture advice to the dns scanner's output")
	cmdScan.Flags().BoolVar(&checkTLS, "checkTLS", false, "Check TLS connectivity and certificate validity as part of dns advice")
	cmdScan.Flags().DurationVar(&cacheTTL, "cache-ttl", 3*time.Minute, "How long DNS lookups and TLS handshakes are cached for")
	cmdScan.Flags().DurationVarP(&timeout, "timeout", "t", 15*time.Second, "Timeout duration for queries")
	cmdScan.Flags().Uint16VarP(&concurrent, "concurrent", "c", uint16(runtime.NumCPU()), "Lookup pool size of the dns scanning engine; the dns scanner passes it one domain per call, so domain-level concurrency is set by --workers")
	cmdScan.Flags().StringSliceVar(&dkimSelectors, "dkimSelector", nil, "Specify a DKIM selector")
	cmdScan.Flags().Uint16Var(&dnsBuffer, "dnsBuffer", 4096, "Specify the allocated buffer for DNS responses")
	cmdScan.Flags().StringVar(&dnsProtocol, "dnsProtocol", "udp", "Protocol to use for DNS queries (udp, tcp, tcp-tls)")
	cmdScan.Flags().IntVar(&defaultWorkers, "workers", 8, "Default per-scanner worker pool size")
	cmdScan.Flags().IntVar(&globalMaxTasks, "globalMaxTasks", 1000, "Maximum number of in-flight domain tasks across every scanner")
	cmdScan.Flags().DurationVar(&settleDelay, "settleDelay", 20*time.Second, "Delay before remote log enrichment begins, to give the platform time to deliver logs")
	cmdScan.Flags().BoolVar(&useLambda, "lambda", false, "Dispatch scanners to AWS Lambda instead of running them locally")
	cmdScan.Flags().StringVar(&lambdaProfile, "lambda-profile", "", "AWS shared config profile to use for the Lambda and CloudWatch Logs clients")
	cmdScan.Flags().IntVar(&lambdaRetries, "lambda-retries", 2, "Number of retries for a retriable Lambda invocation error")
	cmdScan.Flags().BoolVar(&lambdaDetails, "lambda-details", false, "Enrich result tables with CloudWatch Logs details after a remote run settles")
}

var (
	cmdScan = &cobra.Command{
		Use:     "scan",
		Short:   "Scan a batch of domains with one or more scanner modules",
		Example: "  domainscan scan --domains domains.txt --scanners dns,tlshardening",
		Args:    cobra.NoArgs,
		Run:     runScan,
	}

	domainsFile                     string
	scannerNames                    []string
	resultsDir, cacheDir            string
	cacheEnabled, metaEnabled       bool
	sortOutput                      bool
	suffix                          string
	advise, checkTLS                bool
	cacheTTL, timeout               time.Duration
	concurrent                      uint16
	dkimSelectors                   []string
	dnsBuffer                       uint16
	dnsProtocol                     string
	defaultWorkers, globalMaxTasks  int
	settleDelay                     time.Duration
	useLambda                       bool
	lambdaProfile                   string
	lambdaRetries                   int
	lambdaDetails                   bool
)

func runScan(command *cobra.Command, args []string) {
	ctx := context.Background()

	domains, err := readDomains(domainsFile)
	if err != nil {
		log.Fatal().Err(err).Msg("unable to read domains")
	}
	if len(domains) == 0 {
		log.Fatal().Msg("no domains provided")
	}

	if len(scannerNames) == 0 {
		scannerNames = cfg.DefaultScanners
	}

	dnsScanner, err := scanner.New(log, timeout,
		scanner.WithCacheDuration(cacheTTL),
		scanner.WithConcurrentScans(concurrent),
		scanner.WithDNSBuffer(dnsBuffer),
		scanner.WithNameservers(nameservers),
		scanner.WithDNSProtocol(dnsProtocol),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("unable to initialize dns scanner")
	}

	if len(dkimSelectors) > 0 {
		if err := dnsScanner.OverwriteOption(scanner.WithDKIMSelectors(dkimSelectors...)); err != nil {
			log.Fatal().Err(err).Msg("invalid dkim selector")
		}
	}

	var adv *advisor.Advisor
	if advise {
		adv = advisor.NewAdvisor(timeout, true, checkTLS)
	}

	resultCache := cache.NewResultCache(cacheDir, cacheEnabled)

	local := &executor.Local{}

	var remote *executor.Remote
	var logsClient dispatcher.LogsClient
	if useLambda {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithSharedConfigProfile(lambdaProfile))
		if err != nil {
			log.Fatal().Err(err).Msg("unable to load aws config")
		}

		remote = &executor.Remote{Lambda: lambda.NewFromConfig(awsCfg), MaxRetries: lambdaRetries}
		logsClient = cloudwatchlogs.NewFromConfig(awsCfg)
	}

	dispatcherCfg := dispatcher.Config{
		ResultsDir:     resultsDir,
		CacheDir:       cacheDir,
		CacheEnabled:   cacheEnabled,
		MetaEnabled:    metaEnabled,
		SortOutput:     sortOutput,
		Suffix:         suffix,
		UseLambda:      useLambda,
		LambdaRetries:  lambdaRetries,
		LambdaDetails:  lambdaDetails,
		DefaultWorkers: defaultWorkers,
		GlobalMaxTasks: globalMaxTasks,
		SettleDelay:    settleDelay,
		Command:        "domainscan scan",
	}

	d := dispatcher.New(dispatcherCfg, log, resultCache, local, remote)
	d.Logs = logsClient

	for _, reg := range scanners.All(scanners.BuildOptions{
		DNSScanner:  dnsScanner,
		Advisor:     adv,
		DialTimeout: timeout,
		TLSCacheTTL: cacheTTL,
		HTTPTimeout: timeout,
	}) {
		d.Register(reg)
	}

	metadata, err := d.Run(ctx, domains, scannerNames)
	if err != nil {
		log.Fatal().Err(err).Msg("scan run failed")
	}

	log.Info().Str("scan_uuid", metadata.ScanUUID).Dur("duration", metadata.Duration).Msg("scan run complete")
}

func readDomains(path string) ([]string, error) {
	var reader *bufio.Scanner

	if path == "" {
		reader = bufio.NewScanner(os.Stdin)
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()

		reader = bufio.NewScanner(f)
	}

	var domains []string
	for reader.Scan() {
		line := strings.TrimSpace(reader.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		domains = append(domains, line)
	}

	return domains, reader.Err()
}
