// resumectl 本地调试工具：归一化反馈 JSON、生成预览图、打印分析指令
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"

	"resumind/internal/config"
	"resumind/internal/feedback"
	"resumind/internal/llm"
	"resumind/internal/logger"
	"resumind/internal/preview"
	"resumind/internal/types"
)

const usage = `用法:
  resumectl normalize <feedback.json|->      输出归一化反馈和展示数据
  resumectl preview <resume> <out.png>       生成第一页预览图
  resumectl instructions --title T --description D
`

func main() {
	logger.Init(logger.Config{Level: "warn", Format: "pretty"})

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "normalize":
		err = runNormalize(os.Args[2:], os.Stdout)
	case "preview":
		err = runPreview(os.Args[2:], os.Stdout)
	case "instructions":
		err = runInstructions(os.Args[2:], os.Stdout)
	case "-h", "--help", "help":
		fmt.Fprint(os.Stdout, usage)
		return
	default:
		err = fmt.Errorf("未知命令: %s", os.Args[1])
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}

type normalizeOutput struct {
	Feedback types.NormalizedFeedback `json:"feedback"`
	View     feedback.View            `json:"view"`
}

func runNormalize(args []string, out io.Writer) error {
	fs := pflag.NewFlagSet("normalize", pflag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("normalize 需要一个文件参数")
	}

	var data []byte
	var err error
	if fs.Arg(0) == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(fs.Arg(0))
	}
	if err != nil {
		return fmt.Errorf("读取反馈文件失败: %w", err)
	}

	var raw types.RawFeedback
	if err := json.Unmarshal([]byte(llm.CleanJSON(string(data))), &raw); err != nil {
		return fmt.Errorf("解析反馈 JSON 失败: %w", err)
	}
	normalized := feedback.Normalize(raw)

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(normalizeOutput{Feedback: normalized, View: feedback.BuildView(normalized)})
}

func runPreview(args []string, out io.Writer) error {
	fs := pflag.NewFlagSet("preview", pflag.ContinueOnError)
	width := fs.Int("width", 850, "图片宽度")
	height := fs.Int("height", 1100, "图片高度")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 2 {
		return fmt.Errorf("preview 需要输入文件和输出文件")
	}

	data, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		return fmt.Errorf("读取简历失败: %w", err)
	}
	converter, err := preview.NewConverter(config.PreviewConfig{Width: *width, Height: *height})
	if err != nil {
		return err
	}
	img, err := converter.Convert(context.Background(), fs.Arg(0), data)
	if err != nil {
		return err
	}
	if err := os.WriteFile(fs.Arg(1), img.Data, 0644); err != nil {
		return fmt.Errorf("写入预览图失败: %w", err)
	}
	fmt.Fprintf(out, "已生成 %s (%dx%d, %d bytes)\n", fs.Arg(1), img.Width, img.Height, len(img.Data))
	return nil
}

func runInstructions(args []string, out io.Writer) error {
	fs := pflag.NewFlagSet("instructions", pflag.ContinueOnError)
	title := fs.StringP("title", "t", "", "职位名称")
	description := fs.StringP("description", "d", "", "职位描述")
	if err := fs.Parse(args); err != nil {
		return err
	}
	_, err := fmt.Fprintln(out, llm.Instructions(*title, *description))
	return err
}
