package checkldapconsistency

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSuffixFromDomain(t *testing.T) {
	tests := []struct {
		in  string
		res string
	}{
		{"ipa.example.com", "dc=ipa,dc=example,dc=com"},
		{"example.com.", "dc=example,dc=com"},
		{"local", "dc=local"},
	}

	for _, tst := range tests {
		assert.Equalf(t, tst.res, suffixFromDomain(tst.in), "suffixFromDomain: %s", tst.in)
	}
}

func TestSplitCommaList(t *testing.T) {
	assert.Equalf(t, []string{"ipa01", "ipa02"}, splitCommaList("ipa01, ipa02"), "simple list")
	assert.Equalf(t, []string{"ipa01"}, splitCommaList(" ipa01 , , "), "blank entries dropped")
	assert.Emptyf(t, splitCommaList(""), "empty list")
}

func TestReadPasswordFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "passwd")
	require.NoErrorf(t, os.WriteFile(path, []byte("s3cr3t\nsecond line ignored\n"), 0o600), "password file written")

	bindPw, err := readPasswordFile(path)
	require.NoErrorf(t, err, "password read")
	assert.Equalf(t, "s3cr3t", bindPw, "first line wins")

	_, err = readPasswordFile(filepath.Join(t.TempDir(), "missing"))
	require.Errorf(t, err, "missing file")

	var configErr *ConfigError
	require.ErrorAsf(t, err, &configErr, "typed config error")
}

func TestSelectChecks(t *testing.T) {
	checks, selector, err := selectChecks("")
	require.NoErrorf(t, err, "interactive selection")
	assert.Lenf(t, checks, 14, "full catalog")
	assert.Equalf(t, "", selector, "empty selector kept")

	checks, selector, err = selectChecks(NagiosAll)
	require.NoErrorf(t, err, "all selection")
	assert.Lenf(t, checks, 14, "full catalog")
	assert.Equalf(t, NagiosAll, selector, "all selector kept")

	checks, selector, err = selectChecks("users")
	require.NoErrorf(t, err, "single selection")
	require.Lenf(t, checks, 1, "single check")
	assert.Equalf(t, "users", selector, "canonical id")

	checks, selector, err = selectChecks("msdscs")
	require.NoErrorf(t, err, "alias selection")
	require.Lenf(t, checks, 1, "single check")
	assert.Equalf(t, "msdcs", selector, "alias resolved")
	assert.Equalf(t, "msdcs", checks[0].ID, "alias resolved to definition")

	_, _, err = selectChecks("bogus")
	require.Errorf(t, err, "unknown check")
	assert.Containsf(t, err.Error(), "unknown check: bogus", "error message")
}

func TestCheckVersion(t *testing.T) {
	buf := &bytes.Buffer{}
	exit := Check(context.Background(), buf, []string{"-V"})

	assert.Equalf(t, 0, exit, "version exits zero")
	assert.Containsf(t, buf.String(), "check_ldap_consistency v", "version output")
}

func TestCheckHelp(t *testing.T) {
	buf := &bytes.Buffer{}
	exit := Check(context.Background(), buf, []string{"--help"})

	assert.Equalf(t, 0, exit, "help exits zero")
	assert.Containsf(t, buf.String(), "--binddn", "help lists flags")
	assert.Containsf(t, buf.String(), "--nagios", "help lists monitoring flag")
}

func TestCheckBadFlag(t *testing.T) {
	buf := &bytes.Buffer{}
	exit := Check(context.Background(), buf, []string{"--no-such-flag"})

	assert.Equalf(t, 1, exit, "bad arguments exit one")
	assert.Containsf(t, buf.String(), "unknown flag", "parse error printed")
}

func TestCheckMissingServers(t *testing.T) {
	buf := &bytes.Buffer{}
	exit := Check(context.Background(), buf, []string{"-W", "pw", "-b", "dc=ipa,dc=test"})

	assert.Equalf(t, 1, exit, "interactive failure exits one")
	assert.Containsf(t, buf.String(), "no directory servers", "error message")
}

func TestCheckMissingPassword(t *testing.T) {
	buf := &bytes.Buffer{}
	exit := Check(context.Background(), buf, []string{"-d", "ipa.test"})

	assert.Equalf(t, 1, exit, "interactive failure exits one")
	assert.Containsf(t, buf.String(), "bind password missing", "error message")
}

func TestCheckMissingConfigFile(t *testing.T) {
	buf := &bytes.Buffer{}
	missing := filepath.Join(t.TempDir(), "missing.ini")
	exit := Check(context.Background(), buf, []string{"-C", missing, "-d", "ipa.test", "-W", "pw"})

	assert.Equalf(t, 1, exit, "missing config exits one")
	assert.Containsf(t, buf.String(), missing, "error names the file")
}

func TestCheckMonitoringUnknownCheck(t *testing.T) {
	buf := &bytes.Buffer{}
	exit := Check(context.Background(), buf, []string{"--nagios=bogus", "-d", "ipa.test", "-W", "pw"})

	assert.Equalf(t, 3, exit, "monitoring pre-flight failure exits three")
	assert.Containsf(t, buf.String(), "UNKNOWN - unknown check: bogus", "plugin protocol kept")
}

func TestCheckMonitoringSelectorArgument(t *testing.T) {
	buf := &bytes.Buffer{}
	exit := Check(context.Background(), buf, []string{"-n", "bogus", "-d", "ipa.test", "-W", "pw"})

	// the selector may follow -n as a separate argument
	assert.Equalf(t, 3, exit, "monitoring pre-flight failure exits three")
	assert.Containsf(t, buf.String(), "UNKNOWN - unknown check: bogus", "plugin protocol kept")
}

func TestCheckMonitoringBadThresholds(t *testing.T) {
	buf := &bytes.Buffer{}
	exit := Check(context.Background(), buf, []string{"-n", "-d", "ipa.test", "-W", "pw", "-w", "5", "-c", "3"})

	assert.Equalf(t, 3, exit, "monitoring pre-flight failure exits three")
	assert.Containsf(t, buf.String(), "UNKNOWN - critical threshold 3 below warning threshold 5", "plugin protocol kept")
}

func TestCheckUnexpectedArgument(t *testing.T) {
	buf := &bytes.Buffer{}
	exit := Check(context.Background(), buf, []string{"stray", "-d", "ipa.test", "-W", "pw"})

	assert.Equalf(t, 1, exit, "stray argument exits one")
	assert.Containsf(t, buf.String(), "unexpected arguments: stray", "error message")
}

func TestBuildSettingsPrecedence(t *testing.T) {
	iniPath := filepath.Join(t.TempDir(), "check_ldap_consistency.ini")
	iniText := `
[ldap]
domain = ipa.test
servers = ipa01, ipa02
binddn = uid=monitor,cn=sysaccounts,cn=etc,dc=ipa,dc=test
bindpw = inifile
port = 1389
timeout = 30s

[checks]
max queries = 4
`
	require.NoErrorf(t, os.WriteFile(iniPath, []byte(iniText), 0o600), "config written")

	opts := &options{Config: iniPath}
	settings, err := buildSettings(opts, nil)
	require.NoErrorf(t, err, "settings built")

	assert.Equalf(t, []string{"ipa01", "ipa02"}, settings.Servers, "servers from the config file")
	assert.Equalf(t, "ipa.test", settings.Domain, "domain from the config file")
	assert.Equalf(t, "dc=ipa,dc=test", settings.Suffix, "suffix derived from the domain")
	assert.Equalf(t, "uid=monitor,cn=sysaccounts,cn=etc,dc=ipa,dc=test", settings.BindDN, "binddn from the config file")
	assert.Equalf(t, "inifile", settings.BindPw, "bindpw from the config file")
	assert.Equalf(t, int64(1389), settings.Port, "port from the config file")
	assert.Equalf(t, float64(30), settings.Timeout, "timeout from the config file")
	assert.Equalf(t, int64(4), settings.MaxQueries, "max queries from the config file")

	// command line overrides
	unbounded := int64(0)
	opts = &options{
		Config:     iniPath,
		BindPw:     "flagpw",
		Base:       "dc=other,dc=test",
		Domain:     "other.test",
		Timeout:    5,
		MaxQueries: &unbounded,
	}
	settings, err = buildSettings(opts, nil)
	require.NoErrorf(t, err, "settings built")

	assert.Equalf(t, "flagpw", settings.BindPw, "bindpw flag wins")
	assert.Equalf(t, "dc=other,dc=test", settings.Suffix, "base flag wins")
	assert.Equalf(t, "other.test", settings.Domain, "domain flag wins")
	assert.Equalf(t, float64(5), settings.Timeout, "timeout flag wins")
	assert.Equalf(t, int64(0), settings.MaxQueries, "max queries flag allows unbounded")
}

func TestBuildSettingsBindPwFile(t *testing.T) {
	pwPath := filepath.Join(t.TempDir(), "passwd")
	require.NoErrorf(t, os.WriteFile(pwPath, []byte("filepw\n"), 0o600), "password file written")

	opts := &options{
		Domain:     "ipa.test",
		BindPwFile: pwPath,
	}
	settings, err := buildSettings(opts, nil)
	require.NoErrorf(t, err, "settings built")
	assert.Equalf(t, "filepw", settings.BindPw, "bindpw from file")

	// an explicit password still wins over the file
	opts.BindPw = "flagpw"
	settings, err = buildSettings(opts, nil)
	require.NoErrorf(t, err, "settings built")
	assert.Equalf(t, "flagpw", settings.BindPw, "bindpw flag wins over file")
}

func TestBuildSettingsNagiosSelector(t *testing.T) {
	all := NagiosAll
	opts := &options{
		Domain: "ipa.test",
		BindPw: "pw",
		Nagios: &all,
	}

	settings, err := buildSettings(opts, []string{"users"})
	require.NoErrorf(t, err, "settings built")
	assert.Equalf(t, "users", settings.Nagios, "selector taken from the leftover argument")

	settings, err = buildSettings(opts, nil)
	require.NoErrorf(t, err, "settings built")
	assert.Equalf(t, NagiosAll, settings.Nagios, "all checks by default")
}
