package main

/*
  bio-dupcons marks duplicate read pairs in a coordinate-sorted BAM file
  and optionally collapses them into consensus reads. For more
  information, see github.com/grailbio/dupcons/markduplicates/doc.go
*/

import (
	"github.com/grailbio/base/grail"
	"github.com/grailbio/dupcons/cmd/bio-dupcons/cmd"
)

func main() {
	shutdown := grail.Init()
	defer shutdown()
	cmd.Run()
}
