// Command vfatutil is a small shell over the vfat library: mount an image
// and list, read, write, or remove files against it. It exercises the
// public API, but the functional filesystem operations themselves are the
// whole point here, not out of scope: only the surrounding CLI shell is
// incidental, not the library it drives.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/corrinth/vfat"
	"github.com/corrinth/vfat/device"
	"github.com/corrinth/vfat/fat"
)

func main() {
	app := cli.App{
		Name:  "vfatutil",
		Usage: "Poke at a FAT16/FAT32 disk image",
		Commands: []*cli.Command{
			{
				Name:      "ls",
				Usage:     "List a directory's entries",
				ArgsUsage: "IMAGE PATH",
				Action:    runLs,
			},
			{
				Name:      "cat",
				Usage:     "Print a file's contents to stdout",
				ArgsUsage: "IMAGE PATH",
				Action:    runCat,
			},
			{
				Name:      "cp",
				Usage:     "Copy a local file into the image",
				ArgsUsage: "IMAGE LOCAL_FILE DEST_PATH",
				Action:    runCp,
			},
			{
				Name:      "rm",
				Usage:     "Remove a file from the image",
				ArgsUsage: "IMAGE PATH",
				Action:    runRm,
			},
			{
				Name:      "stat",
				Usage:     "Print aggregate cluster usage",
				ArgsUsage: "IMAGE",
				Action:    runStat,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("vfatutil: %s", err)
	}
}

func openVolume(imagePath string) (*fat.Volume, *os.File, error) {
	f, err := os.OpenFile(imagePath, os.O_RDWR, 0)
	if err != nil {
		return nil, nil, err
	}
	vol, err := fat.Mount(device.New(f))
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	return vol, f, nil
}

func runLs(c *cli.Context) error {
	if c.Args().Len() < 2 {
		return fmt.Errorf("usage: vfatutil ls IMAGE PATH")
	}
	vol, f, err := openVolume(c.Args().Get(0))
	if err != nil {
		return err
	}
	defer f.Close()

	entries, err := vol.ReadDir(c.Args().Get(1))
	if err != nil {
		return err
	}
	for _, e := range entries {
		kind := "f"
		if e.IsDir {
			kind = "d"
		}
		fmt.Printf("%s  %10d  %s\n", kind, e.Size, e.Name)
	}
	return nil
}

func runCat(c *cli.Context) error {
	if c.Args().Len() < 2 {
		return fmt.Errorf("usage: vfatutil cat IMAGE PATH")
	}
	vol, f, err := openVolume(c.Args().Get(0))
	if err != nil {
		return err
	}
	defer f.Close()

	file, err := vol.Open(c.Args().Get(1), vfat.O_RDONLY)
	if err != nil {
		return err
	}
	defer file.Close()

	buf := make([]byte, file.Size())
	if _, err := file.Read(buf); err != nil {
		return err
	}
	_, err = os.Stdout.Write(buf)
	return err
}

func runCp(c *cli.Context) error {
	if c.Args().Len() < 3 {
		return fmt.Errorf("usage: vfatutil cp IMAGE LOCAL_FILE DEST_PATH")
	}
	vol, f, err := openVolume(c.Args().Get(0))
	if err != nil {
		return err
	}
	defer f.Close()

	data, err := os.ReadFile(c.Args().Get(1))
	if err != nil {
		return err
	}

	dest, err := vol.Open(c.Args().Get(2), vfat.O_RDWR|vfat.O_CREAT|vfat.O_TRUNC)
	if err != nil {
		return err
	}
	defer dest.Close()

	_, err = dest.Write(data)
	return err
}

func runRm(c *cli.Context) error {
	if c.Args().Len() < 2 {
		return fmt.Errorf("usage: vfatutil rm IMAGE PATH")
	}
	vol, f, err := openVolume(c.Args().Get(0))
	if err != nil {
		return err
	}
	defer f.Close()

	return vol.Unlink(c.Args().Get(1))
}

func runStat(c *cli.Context) error {
	if c.Args().Len() < 1 {
		return fmt.Errorf("usage: vfatutil stat IMAGE")
	}
	vol, f, err := openVolume(c.Args().Get(0))
	if err != nil {
		return err
	}
	defer f.Close()

	stat, err := vol.Stats()
	if err != nil {
		return err
	}
	fmt.Printf(
		"bytes/cluster: %d  total: %d  free: %d  allocated: %d\n",
		stat.BytesPerCluster, stat.TotalClusters, stat.FreeClusters, stat.AllocatedClusters)
	return nil
}
