package command

import (
	_ "github.com/dot2gua/hbase98learning/hbck/catalog/etcd"
	_ "github.com/dot2gua/hbase98learning/hbck/catalog/hbase"
	_ "github.com/dot2gua/hbase98learning/hbck/catalog/leveldb"
	_ "github.com/dot2gua/hbase98learning/hbck/catalog/memory"
	_ "github.com/dot2gua/hbase98learning/hbck/catalog/mysql"
	_ "github.com/dot2gua/hbase98learning/hbck/catalog/postgres"
	_ "github.com/dot2gua/hbase98learning/hbck/catalog/redis"
	_ "github.com/dot2gua/hbase98learning/hbck/catalog/sqlite"
)
