package command

import (
	"os"
	"path/filepath"
)

func init() {
	cmdScaffold.Run = runScaffold // break init cycle
}

var cmdScaffold = &Command{
	UsageLine: "scaffold [-output=.]",
	Short:     "generate a basic hbck.toml",
	Long: `Generate hbck.toml with all possible configurations for you to customize.

  `,
}

var (
	outputPath = cmdScaffold.Flag.String("output", "", "if not empty, save the configuration file to this directory")
)

func runScaffold(cmd *Command, args []string) bool {
	if *outputPath != "" {
		if err := os.WriteFile(filepath.Join(*outputPath, "hbck.toml"), []byte(HBCK_TOML_EXAMPLE), 0644); err != nil {
			println(err.Error())
			SetExitStatus(1)
		}
	} else {
		println(HBCK_TOML_EXAMPLE)
	}
	return true
}

const (
	HBCK_TOML_EXAMPLE = `
# A sample TOML config file for hbck
# Put this file to one of the location, with descending priority
#    ./hbck.toml
#    $HOME/.hbck/hbck.toml
#    /etc/hbck/hbck.toml
# Every key can be overridden with an environment variable, e.g.
#    HBCK_STORAGE_ROOT=/hbase

[hbck]
workers = 16                # parallel directory and region server scans
retries = 3                 # attempts per unit before it is reported as a scan failure
timeout = "30s"             # bound on every single filesystem or region server call
instance = ""               # instance label for pushed metrics

[storage]
type = "local"              # local or hdfs
root = "/hbase"

[storage.hdfs]
namenodes = [ "localhost:8020" ]
user = "hbase"

[cluster]
coordinator = "zookeeper"   # zookeeper, etcd, static or none
info_port = 16030           # region server status port

[cluster.zookeeper]
servers = [ "localhost:2181" ]
parent = "/hbase"
session_timeout = "10s"

[cluster.etcd]
servers = [ "localhost:2379" ]
prefix = "/hbase/"
timeout = "3s"

[cluster.static]
# a fixed cluster description, mostly for testing
active = false
servers = [ ]

####################################################
# exactly one catalog store must be enabled
####################################################

[catalog.hbase]
# the catalog table lives in hbase itself
enabled = true
zkquorum = "localhost:2181"
table = "hbck_catalog"

[catalog.memory]
# local in memory, mostly for testing purpose
enabled = false

[catalog.leveldb]
# local on disk, for a single operator machine
enabled = false
dir = "./catalog"

[catalog.sqlite]
enabled = false
dbFile = "./catalog.db"

[catalog.etcd]
enabled = false
servers = "localhost:2379"
key_prefix = "/hbck/catalog/"
timeout = "3s"

[catalog.redis]
enabled = false
address = [ "localhost:6379" ]
password = ""
database = 0
hash_key = "hbck:catalog"

[catalog.mysql]
# CREATE TABLE IF NOT EXISTS hbck_catalog (
#   row_key     VARBINARY(767) NOT NULL,
#   value       MEDIUMBLOB,
#   PRIMARY KEY (row_key)
# );
enabled = false
hostname = "localhost"
port = 3306
username = "root"
password = ""
database = ""
table = "hbck_catalog"
connection_max_idle = 2
connection_max_open = 100
connection_max_lifetime_seconds = 0

[catalog.postgres]
# CREATE TABLE IF NOT EXISTS hbck_catalog (
#   row_key     BYTEA NOT NULL,
#   value       BYTEA,
#   PRIMARY KEY (row_key)
# );
enabled = false
hostname = "localhost"
port = 5432
username = "postgres"
password = ""
database = "postgres"
schema = ""
sslmode = "disable"
table = "hbck_catalog"
connection_max_idle = 100
connection_max_open = 100
connection_max_lifetime_seconds = 0
`
)
