package checkldapconsistency

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/mackerelio/checkers"
)

const (
	// Name of this plugin.
	Name = "check_ldap_consistency"

	// VERSION of this plugin.
	VERSION = "0.4.2"
)

// options covers all command line arguments.
type options struct {
	Servers      []string `short:"H" long:"server" description:"directory server, short or fully qualified name, repeat for multiple servers"`
	Domain       string   `short:"d" long:"domain" description:"domain for SRV discovery and for qualifying short server names"`
	Base         string   `short:"b" long:"base" description:"directory suffix, derived from the domain when unset"`
	BindDN       string   `short:"D" long:"binddn" description:"bind DN (default: cn=Directory Manager)"`
	BindPw       string   `short:"W" long:"bindpw" description:"bind password"`
	BindPwFile   string   `long:"bindpw-file" description:"read the bind password from the first line of this file"`
	Nagios       *string  `short:"n" long:"nagios" optional:"true" optional-value:"all" description:"monitoring mode, all checks or a single check ID"`
	Warning      int64    `short:"w" long:"warning" default:"1" description:"number of failed checks to warn at"`
	Critical     int64    `short:"c" long:"critical" default:"2" description:"number of failed checks to go critical at"`
	Output       string   `short:"o" long:"output" default:"table" choice:"table" choice:"json" choice:"yaml" description:"interactive output format"`
	PromTextfile string   `long:"prom-textfile" description:"write the results as prometheus textfile metrics"`
	UseLDAPS     bool     `long:"ldaps" description:"use LDAPS (port 636) instead of LDAP (port 389)"`
	Insecure     bool     `long:"insecure" description:"skip TLS certificate verification"`
	Port         int64    `long:"port" description:"override the directory server port"`
	Timeout      float64  `long:"timeout" description:"timeout per directory query in seconds (default: 10)"`
	MaxQueries   *int64   `long:"max-queries" description:"bound on concurrent directory queries, 0 disables the bound (default: 16)"`
	Config       string   `short:"C" long:"config" description:"config file path"`
	LogFile      string   `long:"log-file" description:"log file: stderr, stdout or a path"`
	LogLevel     string   `long:"log-level" description:"log level: off, error, info, debug, trace"`
	Verbose      []bool   `short:"v" long:"verbose" description:"raise the log level, -v debug, -vv trace"`
	Version      bool     `short:"V" long:"version" description:"print the version and exit"`
}

// Settings are the merged run settings from the config file and arguments.
type Settings struct {
	Servers      []string
	Domain       string
	Suffix       string
	BindDN       string
	BindPw       string
	UseLDAPS     bool
	Insecure     bool
	Port         int64
	Timeout      float64 // seconds
	MaxQueries   int64
	Nagios       string // empty in interactive mode
	Warning      int64
	Critical     int64
	Output       string
	PromTextfile string
}

// Check runs the consistency checks and writes the result to output. The
// return value is the process exit code, in monitoring mode it follows the
// plugin convention (0 OK, 1 WARNING, 2 CRITICAL, 3 UNKNOWN).
func Check(ctx context.Context, output io.Writer, args []string) int {
	opts, leftover, err := parseArgs(args)
	if err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			fmt.Fprintln(output, flagsErr.Message)

			return 0
		}
		fmt.Fprintf(output, "%s: %s\n", Name, err.Error())

		return 1
	}

	if opts.Version {
		fmt.Fprintf(output, "%s v%s\n", Name, VERSION)

		return 0
	}

	monitoring := opts.Nagios != nil
	settings, err := buildSettings(opts, leftover)
	if err != nil {
		return fatal(output, monitoring, err)
	}

	checks, selector, err := selectChecks(settings.Nagios)
	if err != nil {
		return fatal(output, monitoring, err)
	}

	// thresholds only apply to the all-checks monitoring tally
	if monitoring && selector == NagiosAll {
		if err := ValidateThresholds(settings.Warning, settings.Critical, int64(len(checks))); err != nil {
			return fatal(output, monitoring, err)
		}
	}

	queryTimeout := time.Duration(settings.Timeout * float64(time.Second))
	set, err := ResolveServers(settings.Servers, settings.Domain, NewDNSResolver(queryTimeout))
	if err != nil {
		return fatal(output, monitoring, err)
	}

	querier := NewLDAPQuerier(settings.BindDN, settings.BindPw)
	querier.UseLDAPS = settings.UseLDAPS
	querier.Insecure = settings.Insecure
	querier.Port = int(settings.Port)
	querier.Timeout = queryTimeout

	eng := NewEngine(set, querier, settings.Suffix, checks, int(settings.MaxQueries))
	if err := eng.ValidateBind(ctx); err != nil {
		return fatal(output, monitoring, err)
	}

	log.Debugf("running %d checks on %d servers", len(checks), len(set.Servers))
	results := eng.Run(ctx)
	rep := NewReport(set, results)

	if settings.PromTextfile != "" {
		// a failing metrics write must not change the check outcome
		LogError(WriteMetrics(settings.PromTextfile, rep))
	}

	if monitoring {
		ckr := MonitoringVerdict(results, selector, settings.Warning, settings.Critical)
		fmt.Fprintf(output, "%s - %s\n", ckr.Status, strings.TrimSpace(ckr.Message))

		return int(ckr.Status)
	}

	rendered, err := rep.Render(settings.Output)
	if err != nil {
		return fatal(output, monitoring, err)
	}
	fmt.Fprint(output, rendered)

	return 0
}

func parseArgs(args []string) (opts *options, leftover []string, err error) {
	opts = &options{}
	parser := flags.NewParser(opts, flags.HelpFlag|flags.PassDoubleDash)
	parser.Name = Name
	leftover, err = parser.ParseArgs(args)

	return opts, leftover, err
}

// fatal reports a failed run before or after the checks. Monitoring mode
// keeps the plugin protocol and reports UNKNOWN, interactive runs print
// the bare message and exit with a generic failure.
func fatal(output io.Writer, monitoring bool, err error) int {
	LogError(err)
	if monitoring {
		fmt.Fprintf(output, "%s - %s\n", checkers.UNKNOWN, err.Error())

		return int(checkers.UNKNOWN)
	}
	fmt.Fprintf(output, "%s\n", err.Error())

	return 1
}

// selectChecks resolves the monitoring selector to the checks to run and
// the canonical check ID.
func selectChecks(selector string) ([]*CheckDefinition, string, error) {
	if selector == "" || selector == NagiosAll {
		return Catalog(), selector, nil
	}

	def := LookupCheck(selector)
	if def == nil {
		return nil, "", configErrorf("unknown check: %s (known: %s)", selector, strings.Join(CheckIDs(), ", "))
	}

	return []*CheckDefinition{def}, def.ID, nil
}

// buildSettings merges builtin defaults, the config file and the command
// line arguments, later sources win.
func buildSettings(opts *options, leftover []string) (*Settings, error) {
	conf := NewConfig()
	switch {
	case opts.Config != "":
		if err := conf.ReadINI(opts.Config); err != nil {
			return nil, configErrorf("%s", err.Error())
		}
	default:
		for _, path := range DefaultConfigPaths {
			if _, err := os.Stat(path); err != nil {
				continue
			}
			if err := conf.ReadINI(path); err != nil {
				return nil, configErrorf("%s", err.Error())
			}

			break
		}
	}

	applyLogSettings(conf, opts)

	settings := &Settings{
		Warning:      opts.Warning,
		Critical:     opts.Critical,
		Output:       opts.Output,
		PromTextfile: opts.PromTextfile,
	}
	if err := applyLDAPSettings(conf, settings); err != nil {
		return nil, err
	}

	maxQueries, _, err := conf.Section("checks").GetInt("max queries")
	if err != nil {
		return nil, configErrorf("config: %s", err.Error())
	}
	settings.MaxQueries = maxQueries

	// command line arguments override the config file
	if len(opts.Servers) > 0 {
		settings.Servers = opts.Servers
	}
	if opts.Domain != "" {
		settings.Domain = opts.Domain
	}
	if opts.Base != "" {
		settings.Suffix = opts.Base
	}
	if opts.BindDN != "" {
		settings.BindDN = opts.BindDN
	}
	switch {
	case opts.BindPw != "":
		settings.BindPw = opts.BindPw
	case opts.BindPwFile != "":
		bindPw, err := readPasswordFile(opts.BindPwFile)
		if err != nil {
			return nil, err
		}
		settings.BindPw = bindPw
	}
	if opts.UseLDAPS {
		settings.UseLDAPS = true
	}
	if opts.Insecure {
		settings.Insecure = true
	}
	if opts.Port > 0 {
		settings.Port = opts.Port
	}
	if opts.Timeout > 0 {
		settings.Timeout = opts.Timeout
	}
	if opts.MaxQueries != nil {
		settings.MaxQueries = *opts.MaxQueries
	}

	if opts.Nagios != nil {
		settings.Nagios = *opts.Nagios
		if settings.Nagios == "" {
			settings.Nagios = NagiosAll
		}
		// accept "-n users" with the check ID as a separate argument
		if settings.Nagios == NagiosAll && len(leftover) == 1 {
			settings.Nagios = leftover[0]
			leftover = nil
		}
	}
	if len(leftover) > 0 {
		return nil, configErrorf("unexpected arguments: %s", strings.Join(leftover, " "))
	}

	return settings, validateSettings(settings)
}

func applyLogSettings(conf *Config, opts *options) {
	section := conf.Section("log")
	logFile, _ := section.GetString("file name")
	logLevel, _ := section.GetString("level")
	if opts.LogFile != "" {
		logFile = opts.LogFile
	}
	if opts.LogLevel != "" {
		logLevel = opts.LogLevel
	}
	switch len(opts.Verbose) {
	case 0:
	case 1:
		logLevel = "debug"
	default:
		logLevel = "trace"
	}
	setLogFile(logFile)
	setLogLevel(logLevel)
}

func applyLDAPSettings(conf *Config, settings *Settings) error {
	section := conf.Section("ldap")
	if raw, ok := section.GetString("servers"); ok && raw != "" {
		settings.Servers = splitCommaList(raw)
	}
	settings.Domain, _ = section.GetString("domain")
	settings.Suffix, _ = section.GetString("base")
	settings.BindDN, _ = section.GetString("binddn")
	settings.BindPw, _ = section.GetString("bindpw")

	ldaps, _, err := section.GetBool("ldaps")
	if err != nil {
		return configErrorf("config: %s", err.Error())
	}
	settings.UseLDAPS = ldaps

	insecure, _, err := section.GetBool("insecure")
	if err != nil {
		return configErrorf("config: %s", err.Error())
	}
	settings.Insecure = insecure

	port, _, err := section.GetInt("port")
	if err != nil {
		return configErrorf("config: %s", err.Error())
	}
	settings.Port = port

	timeout, _, err := section.GetDuration("timeout")
	if err != nil {
		return configErrorf("config: %s", err.Error())
	}
	settings.Timeout = timeout

	return nil
}

func validateSettings(settings *Settings) error {
	switch {
	case len(settings.Servers) == 0 && settings.Domain == "":
		return configErrorf("no directory servers and no domain given, use --server or --domain")
	case settings.Suffix == "" && settings.Domain == "":
		return configErrorf("directory base missing, use --base or --domain")
	case settings.BindPw == "":
		return configErrorf("bind password missing, use --bindpw, --bindpw-file or the config file")
	case settings.Timeout <= 0:
		return configErrorf("query timeout must be positive")
	case settings.MaxQueries < 0:
		return configErrorf("max queries must be zero or positive")
	}

	if settings.Suffix == "" {
		settings.Suffix = suffixFromDomain(settings.Domain)
	}

	return nil
}

// suffixFromDomain derives the directory suffix from a domain name,
// ex.: ipa.example.com becomes dc=ipa,dc=example,dc=com.
func suffixFromDomain(domain string) string {
	parts := strings.Split(strings.Trim(domain, "."), ".")
	for i, part := range parts {
		parts[i] = "dc=" + part
	}

	return strings.Join(parts, ",")
}

// readPasswordFile returns the first line of the file as bind password.
func readPasswordFile(path string) (string, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return "", configErrorf("reading bindpw file failed: %s", err.Error())
	}
	line, _, _ := strings.Cut(string(buf), "\n")

	return strings.TrimSpace(line), nil
}

func splitCommaList(raw string) []string {
	list := make([]string, 0)
	for _, token := range strings.Split(raw, ",") {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		list = append(list, token)
	}

	return list
}
