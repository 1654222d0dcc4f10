package web

type Config struct {
	Port       int
	Address    string
	Directory  string
	Logfile    string
	Loglevel   string
	Memtable   string
	MaxEntries int
	MaxBytes   int
}
